package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/NotDec/NotDec-sub000/internal/compiler"
	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// LoadMode controls how errors are handled during program loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedProgram is one decoded program file.
type LoadedProgram struct {
	Path    string
	Program *ir.Program
}

// LoadResult contains the programs loaded from the given paths.
type LoadResult struct {
	Programs  []LoadedProgram
	FileCount int // Number of program files found
}

// LoadError represents an error that occurred during program loading.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPrograms loads every program named by paths. A directory stands for
// all .cue and .json files below it, in lexical order.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadPrograms(paths []string, mode LoadMode) (*LoadResult, []error) {
	files, err := FindProgramFiles(paths)
	if err != nil {
		return nil, []error{err}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no program files found in %v", paths)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error
	for _, path := range files {
		p, err := compiler.LoadProgram(path)
		if err != nil {
			errs = append(errs, convertCompileError(err, path))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Programs = append(result.Programs, LoadedProgram{Path: path, Program: p})
	}
	return result, errs
}

// FindProgramFiles expands paths into program files. Files named directly
// are kept whatever their extension so the compiler can reject them.
func FindProgramFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: root, Message: "no such file or directory"}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: root, Message: err.Error()}
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch filepath.Ext(path) {
			case ".cue", ".json":
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Path: root, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, path string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Path:    path,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Path:    path,
		Message: err.Error(),
	}
}
