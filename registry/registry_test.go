package registry

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Width int
}

func widgetFactory(name string) Factory[widget, int] {
	return func(_ context.Context, width int) (widget, error) {
		return widget{Name: name, Width: width}, nil
	}
}

// TestResolveMatchesFactory validates that resolving a name returns exactly what
// the registered factory returns for the same arguments.
func TestResolveMatchesFactory(t *testing.T) {
	r := New[widget, int]("widgets")
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(widgetFactory(name), name))
	}

	for _, name := range []string{"a", "b", "c"} {
		for _, width := range []int{0, 1, 64} {
			got, err := r.Resolve(context.Background(), name, width)
			require.NoError(t, err)
			want, err := widgetFactory(name)(context.Background(), width)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestResolveUnregistered(t *testing.T) {
	r := New[widget, int]("widgets")
	require.NoError(t, r.Register(widgetFactory("a"), "a", WithNamespace("vision")))

	_, err := r.Resolve(context.Background(), "missing", 1)
	assert.True(t, errors.Is(err, ErrNotFound), "unexpected error: %v", err)

	// Registered, but in another namespace.
	_, err = r.Resolve(context.Background(), "a", 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := r.Resolve(context.Background(), "a", 3, WithNamespace("vision"))
	require.NoError(t, err)
	assert.Equal(t, widget{Name: "a", Width: 3}, got)
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[widget, int]("widgets")
	require.NoError(t, r.Register(widgetFactory("first"), "a"))

	err := r.Register(widgetFactory("second"), "a")
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	// Same name in another namespace is a different key.
	require.NoError(t, r.Register(widgetFactory("other"), "a", WithNamespace("vision")))

	require.NoError(t, r.Register(widgetFactory("second"), "a", WithOverride()))
	got, err := r.Resolve(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, 2, r.Len())
}

func TestRegisterInvalid(t *testing.T) {
	r := New[widget, int]("widgets")
	assert.True(t, errors.Is(r.Register(widgetFactory("a"), ""), ErrInvalidEntry))
	assert.True(t, errors.Is(r.Register(nil, "a"), ErrInvalidEntry))
	assert.Panics(t, func() { r.MustRegister(nil, "a") })
}

func TestFactoryErrorPropagates(t *testing.T) {
	r := New[widget, int]("widgets")
	boom := errors.New("boom")
	r.MustRegister(func(context.Context, int) (widget, error) { return widget{}, boom }, "bad")

	_, err := r.Resolve(context.Background(), "bad", 0)
	assert.Equal(t, boom, err)
}

func TestListIsRestartableAndFiltered(t *testing.T) {
	r := New[widget, int]("widgets")
	r.MustRegister(widgetFactory("x"), "resnet18", WithNamespace("vision"), WithType("resnet"))
	r.MustRegister(widgetFactory("y"), "resnet18", WithType("resnet-fpn"))
	r.MustRegister(widgetFactory("z"), "resnet50", WithNamespace("vision"), WithType("resnet"))

	seq := r.List()
	first := slices.Collect(seq)
	second := slices.Collect(seq)

	want := []Key{
		{Name: "resnet18", Namespace: "vision", Type: "resnet"},
		{Name: "resnet18", Namespace: DefaultNamespace, Type: "resnet-fpn"},
		{Name: "resnet50", Namespace: "vision", Type: "resnet"},
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, first, second, "a second pass must yield the same keys")

	vision := slices.Collect(r.List(WithNamespace("vision")))
	assert.Len(t, vision, 2)
	assert.Equal(t, vision, r.Available(WithNamespace("vision")))
	for _, k := range vision {
		assert.Equal(t, "vision", k.Namespace)
	}

	// Early break stops the iteration.
	n := 0
	for range r.List() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestListSeesLaterRegistrations(t *testing.T) {
	r := New[widget, int]("widgets")
	seq := r.List()
	assert.Empty(t, slices.Collect(seq))

	r.MustRegister(widgetFactory("a"), "a")
	assert.Len(t, slices.Collect(seq), 1)
}

func TestMetadataAndFilter(t *testing.T) {
	r := New[widget, int]("widgets")
	r.MustRegister(widgetFactory("a"), "a", WithMetadata("package", "torchvision"))
	r.MustRegister(widgetFactory("b"), "b", WithMetadata("package", "timm"))

	e, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"package": "torchvision"}, e.Metadata)

	keys := r.Filter("package", "timm")
	require.Len(t, keys, 1)
	assert.Equal(t, "b", keys[0].Name)
}

func TestReset(t *testing.T) {
	r := New[widget, int]("widgets")
	for i := range 5 {
		r.MustRegister(widgetFactory("w"), fmt.Sprintf("w%d", i))
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []string{"w0", "w1", "w2", "w3", "w4"}, r.Names())

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, slices.Collect(r.List()))
	assert.False(t, r.Contains("w0"))

	// The registry stays usable after a reset.
	require.NoError(t, r.Register(widgetFactory("w"), "w0"))
	assert.True(t, r.Contains("w0"))
}
