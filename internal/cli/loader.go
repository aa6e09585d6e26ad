package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	store "github.com/goliatone/go-store"
	"github.com/goliatone/go-store/tree"
)

// Document is a store definition file. JSON documents load as well, YAML
// being a superset.
type Document struct {
	Name     string                  `yaml:"name"`
	State    map[string]any          `yaml:"state"`
	Computed map[string]ComputedSpec `yaml:"computed"`
	Metadata map[string]any          `yaml:"metadata"`
}

// ComputedSpec declares an expression-backed computed.
type ComputedSpec struct {
	Engine string `yaml:"engine"`
	Expr   string `yaml:"expr"`
}

// LoadDocument reads and parses the definition at path.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read definition", err)
	}
	return ParseDocument(raw)
}

// ParseDocument parses a definition.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse definition", err)
	}
	if doc.State == nil {
		doc.State = map[string]any{}
	}
	return &doc, nil
}

// LoadPatch reads a YAML or JSON object to merge over a store's state.
func LoadPatch(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read patch", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse patch", err)
	}
	return values, nil
}

// NewStore builds a store from doc.
func NewStore(doc *Document, logger *slog.Logger) (*store.Store, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if doc.Name != "" {
		opts = append(opts, store.WithName(doc.Name))
	}
	if len(doc.Metadata) > 0 {
		opts = append(opts, store.WithMetadata(doc.Metadata))
	}
	for name, decl := range doc.Computed {
		switch strings.ToLower(decl.Engine) {
		case "", "expr":
			opts = append(opts, store.WithExprComputed(name, decl.Expr))
		case "cel":
			opts = append(opts, store.WithCELComputed(name, decl.Expr))
		case "js":
			opts = append(opts, store.WithJSComputed(name, decl.Expr))
		default:
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("computed %q: unknown engine %q", name, decl.Engine))
		}
	}
	st, err := store.New(doc.State, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "create store", err)
	}
	return st, nil
}

// Assignment is a parsed "path=value" flag.
type Assignment struct {
	Path  []string
	Value any
}

// ParseAssignment parses "user.name=ada". The value is read as YAML, so
// numbers, booleans and inline collections keep their type.
func ParseAssignment(flag string) (Assignment, error) {
	path, raw, ok := strings.Cut(flag, "=")
	if !ok || path == "" {
		return Assignment{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid assignment %q: want path=value", flag))
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return Assignment{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid value in %q", flag), err)
	}
	return Assignment{Path: tree.SplitPath(path), Value: value}, nil
}

// Apply writes every assignment in one batch, creating missing objects on
// the way.
func Apply(ctx context.Context, st *store.Store, assignments []Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return st.Update(ctx, func(root tree.Mutable) error {
		for _, a := range assignments {
			if err := assign(root, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func assign(root tree.Mutable, a Assignment) error {
	node := root
	last := len(a.Path) - 1
	for i, segment := range a.Path[:last] {
		next, ok := node.Get(segment).(tree.Mutable)
		if !ok {
			if node.Get(segment) != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("%s is not a container", strings.Join(a.Path[:i+1], ".")))
			}
			node.Set(segment, map[string]any{})
			if next, ok = node.Get(segment).(tree.Mutable); !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("cannot create %s", strings.Join(a.Path[:i+1], ".")))
			}
		}
		node = next
	}
	if !node.Set(a.Path[last], a.Value) {
		return NewExitError(ExitFailure, fmt.Sprintf("write to %s rejected", strings.Join(a.Path, ".")))
	}
	return nil
}
