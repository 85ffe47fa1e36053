package tridenterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageWithoutCause(t *testing.T) {
	err := New(InvalidInput, "bad pcr set")
	require.Equal(t, "InvalidInput: bad pcr set", err.Error())
}

func TestErrorMessageWithCause(t *testing.T) {
	cause := errors.New("file not found")
	err := Wrap(Servicing, cause, "failed to write crypttab")
	require.Contains(t, err.Error(), "Servicing")
	require.Contains(t, err.Error(), "failed to write crypttab")
	require.Contains(t, err.Error(), "file not found")
	require.Equal(t, cause, err.Unwrap())
	require.Equal(t, cause, err.Cause())
}

func TestKindOfFindsTaggedError(t *testing.T) {
	tagged := New(InvalidCosi, "duplicate mount point")
	kind, ok := KindOf(tagged)
	require.True(t, ok)
	require.Equal(t, InvalidCosi, kind)

	kind, ok = KindOf(Wrap(Servicing, tagged, "outer"))
	require.True(t, ok)
	require.Equal(t, Servicing, kind)
}

func TestKindOfUnknownError(t *testing.T) {
	_, ok := KindOf(errors.New("plain error"))
	require.False(t, ok)
}

func TestInternalfTagsInternalKind(t *testing.T) {
	err := Internalf("unreachable: %s", "state X")
	require.Equal(t, Internal, err.Kind)
	require.Contains(t, err.Error(), "unreachable: state X")
}
