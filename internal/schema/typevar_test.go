package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariance_Combine(t *testing.T) {
	assert.Equal(t, Covariant, Covariant.Combine(Covariant))
	assert.Equal(t, Contravariant, Covariant.Combine(Contravariant))
	assert.Equal(t, Covariant, Contravariant.Combine(Contravariant))
	assert.Equal(t, Contravariant, Covariant.Invert())
	assert.Equal(t, "⊕", Covariant.String())
	assert.Equal(t, "⊖", Contravariant.String())
}

func TestPool_InternIsPointerEquality(t *testing.T) {
	p := NewPool()
	a := p.Var("x").PushLabel(Load(32))
	b := p.Intern(Named("x"), []FieldLabel{Load(32)})
	assert.Same(t, a, b)
	assert.NotSame(t, a, p.Var("x").PushLabel(Store(32)))
	assert.Equal(t, 3, p.Len())
}

func TestTypeVar_PushPop(t *testing.T) {
	p := NewPool()
	x := p.Var("x")
	y := x.PushLabel(ConstOffset(4)).PushLabel(Load(8))
	assert.Equal(t, "x.@4.load8", y.String())
	assert.Equal(t, 2, y.NumLabels())

	parent, l, ok := y.PopLabel()
	require.True(t, ok)
	assert.Equal(t, Load(8), l)
	assert.Same(t, x.PushLabel(ConstOffset(4)), parent)
	assert.Same(t, x, y.ToBase())

	_, _, ok = x.PopLabel()
	assert.False(t, ok)
}

func TestTypeVar_Variance(t *testing.T) {
	p := NewPool()
	f := p.Var("f")
	assert.Equal(t, Contravariant, f.PushLabel(In(0)).Variance())
	assert.Equal(t, Covariant, f.PushLabel(In(0)).PushLabel(Store(32)).Variance())
	assert.Equal(t, Covariant, f.PushLabel(Out()).PushLabel(Load(32)).Variance())
}

func TestTypeVar_WithBase(t *testing.T) {
	p := NewPool()
	v := p.Var("callee").PushLabel(In(0))
	b := v.Base()
	b.Instance = 7
	b.Actual = true
	w := v.WithBase(b)
	assert.Equal(t, "callee#7!act.in_0", w.String())
	assert.Equal(t, v.Labels(), w.Labels())
}

func TestBase_String(t *testing.T) {
	assert.Equal(t, "#int", Primitive("#int").String())
	assert.Equal(t, "#int", Primitive("int").String())
	assert.Equal(t, "MEMORY", Memory().String())
	assert.Equal(t, "#Int#@8_call3", IntConst(OffsetRange{Offset: 8}, "call3").String())
}

func TestOffsetRange_Add(t *testing.T) {
	a := OffsetRange{Offset: 4, Access: []ArrayOffset{{Size: 8}}}
	b := OffsetRange{Offset: 2, Access: []ArrayOffset{{Size: 4}, {Size: 16}}}
	sum := a.Add(b)
	assert.Equal(t, int64(6), sum.Offset)
	assert.Equal(t, []ArrayOffset{{Size: 4}}, sum.Access, "multiples of 4 are subsumed")

	assert.True(t, OffsetRange{}.Add(OffsetRange{}).IsZero())
}

func TestOffsetRange_String(t *testing.T) {
	assert.Equal(t, "@0", OffsetRange{}.String())
	assert.Equal(t, "@-4+8", OffsetRange{Offset: -4, Access: []ArrayOffset{{Size: 8}}}.String())
	assert.Equal(t, "@0+4[10]", OffsetRange{Access: []ArrayOffset{{Size: 4, Count: 10}}}.String())
}

func TestFieldLabel_Compare(t *testing.T) {
	assert.Negative(t, In(0).Compare(Out()))
	assert.Negative(t, Load(8).Compare(Load(32)))
	assert.Zero(t, ConstOffset(4).Compare(ConstOffset(4)))
	assert.Positive(t, Store(8).Compare(Load(64)))
	assert.True(t, ConstOffset(0).IsZeroOffset())
	assert.Equal(t, Load(16), Store(16).ToLoad())
}
