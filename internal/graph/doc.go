// Package graph implements the subtyping constraint graph.
//
// A node is a type variable viewed under a suffix variance. Every node has a
// dual with the opposite variance; the pair shares one pointer/number cell in
// the attached pni.Graph. Edges carry one of five labels:
//
//	One              a subtype relation between the two nodes
//	Recall(l)        push field label l (prefix -> var)
//	Forget(l)        pop field label l (var -> prefix)
//	RecallBase(b,v)  leave #Start into a base variable
//	ForgetBase(b,v)  leave a variable into #End
//
// The graph is built with AddConstraint, closed with Saturate and then cut
// into a two-layer shape with LayerSplit (for summaries) or SketchSplit (for
// sketches). Accepted paths from #Start to #End spell out the constraints
// the graph entails.
//
// A Graph is not safe for concurrent use.
package graph
