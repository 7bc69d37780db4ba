package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/wxzimport/internal/record"
)

//go:embed schemas/*.cue
var bundled embed.FS

// UnknownSchemaError is returned for a schema identifier with no bundled
// definition.
type UnknownSchemaError struct {
	ID string
}

// Error implements the error interface.
func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("no schema registered for %q", e.ID)
}

// CUEValidator validates documents against CUE definitions.
//
// Thread-safety: Validate is safe for concurrent use; calls are serialized
// because a cue.Context is not.
type CUEValidator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	root   cue.Value
	prefix string
}

var _ Validator = (*CUEValidator)(nil)

// NewCUEValidator compiles the bundled schemas.
func NewCUEValidator() (*CUEValidator, error) {
	return NewCUEValidatorFS(bundled, "schemas")
}

// NewCUEValidatorFS compiles every .cue file in dir of fsys. The files
// share one scope so definitions may reference each other.
func NewCUEValidatorFS(fsys fs.FS, dir string) (*CUEValidator, error) {
	names, err := fs.Glob(fsys, dir+"/*.cue")
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no schemas found in %s", dir)
	}

	var src strings.Builder
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		src.Write(b)
		src.WriteByte('\n')
	}

	ctx := cuecontext.New()
	root := ctx.CompileString(src.String(), cue.Filename(dir+".cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	return &CUEValidator{ctx: ctx, root: root, prefix: record.SchemaPrefix}, nil
}

// definition resolves a schema identifier to its CUE definition.
func (v *CUEValidator) definition(id string) (cue.Value, error) {
	name, ok := strings.CutPrefix(id, v.prefix)
	if !ok {
		return cue.Value{}, &UnknownSchemaError{ID: id}
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok || name == "" || strings.Contains(name, "/") {
		return cue.Value{}, &UnknownSchemaError{ID: id}
	}

	def := v.root.LookupPath(cue.ParsePath("#"+name))
	if !def.Exists() {
		return cue.Value{}, &UnknownSchemaError{ID: id}
	}
	return def, nil
}

// Validate unifies the document with the definition for schemaID.
func (v *CUEValidator) Validate(doc Document, schemaID string) (Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	def, err := v.definition(schemaID)
	if err != nil {
		return Result{}, err
	}

	expr, err := cuejson.Extract(doc.Path, doc.Raw)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", doc.Path, err)
	}
	data := v.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return Result{}, fmt.Errorf("build %s: %w", doc.Path, err)
	}

	err = def.Unify(data).Validate(cue.Concrete(true))
	if err == nil {
		return Result{Valid: true}, nil
	}
	return Result{Violations: violations(err)}, nil
}

// violations flattens a CUE error list.
func violations(err error) []Violation {
	var out []Violation
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, Violation{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(out) == 0 {
		out = append(out, Violation{Message: err.Error()})
	}
	return out
}
