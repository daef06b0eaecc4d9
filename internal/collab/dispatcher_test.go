package collab

import (
	"context"
	"fmt"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishUsesMembershipSnapshot(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	d := r.Dispatcher()

	for _, sid := range []string{"in", "full", "gone"} {
		_, err := r.Join(ctx, "doc-1", sid)
		require.NoError(t, err)
	}
	// registered after joining so the joined events do not land in the sinks
	in, late, full := &recSink{}, &recSink{}, &recSink{full: true}
	d.Register("in", in)
	d.Register("late", late)
	d.Register("full", full)

	n := d.Publish("doc-1", Event{Name: "note", Data: "hi"})
	require.Equal(t, 1, n, "only the registered member with room in its buffer accepts")
	require.Len(t, in.events, 1)
	require.Empty(t, late.events, "non-members receive nothing")

	d.Unregister("in")
	require.Equal(t, 0, d.Publish("doc-1", Event{Name: "note"}))
	require.Equal(t, 0, d.Publish("no-room", Event{Name: "note"}))
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrMissingToken, "missing_token"},
		{fmt.Errorf("x: %w", tokens.ErrMalformed), "malformed_token"},
		{tokens.ErrInvalid, "invalid_token"},
		{tokens.ErrExpired, "token_expired"},
		{ErrNotAMember, "not_a_member"},
		{ErrNoSuchRoom, "no_such_room"},
		{&ConflictError{Expected: 0, Current: 1}, "version_conflict"},
		{fmt.Errorf("%w: bad patch", ErrMergeFailed), "merge_failed"},
		{ErrForbidden, "forbidden"},
		{ErrDocumentLive, "document_live"},
		{ErrSessionClosed, "session_closed"},
		{ErrShuttingDown, "session_closed"},
		{ErrSessionExists, "session_exists"},
		{ErrBadRequest, "bad_request"},
		{ErrRateLimited, "rate_limited"},
		{ErrTimeout, "timeout"},
		{ErrDisconnected, "disconnected"},
		{errBoom, "internal_error"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Code(tc.err), "%v", tc.err)
	}
}
