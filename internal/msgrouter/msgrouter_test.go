package msgrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-hub/wbp-hub/internal/collab"
	"github.com/game-hub/wbp-hub/internal/model"
)

func TestRouteDeliversToMatchingBinding(t *testing.T) {
	r := New()
	r.AddBinding(&model.Binding{
		BindingID:      "b1",
		GroupID:        "g1",
		ServerID:       "srv-1",
		BindingKind:    model.BindingChat,
		FormatTemplate: "{{.UserName}}: {{.Content}}",
	})

	msg := collab.GroupMessage{GroupID: "g1", UserName: "alice", Content: "hello"}
	out, err := r.Route(context.Background(), msg, model.BindingChat)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alice: hello", out[0])
}

func TestRouteIgnoresDisabledBinding(t *testing.T) {
	r := New()
	r.AddBinding(&model.Binding{BindingID: "b1", GroupID: "g1", BindingKind: model.BindingChat, Disabled: true})

	out, err := r.Route(context.Background(), collab.GroupMessage{GroupID: "g1", Content: "hi"}, model.BindingChat)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyFiltersBlocksOnKeyword(t *testing.T) {
	r := New()
	b := &model.Binding{
		BindingID:   "b1",
		GroupID:     "g1",
		BindingKind: model.BindingChat,
		Filters:     []model.FilterRule{{Type: "keyword", Pattern: "spam", Action: "block"}},
	}
	r.AddBinding(b)

	out, err := r.Route(context.Background(), collab.GroupMessage{GroupID: "g1", Content: "this is spam"}, model.BindingChat)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyFiltersTransformsOnLength(t *testing.T) {
	r := New()
	b := &model.Binding{
		BindingID:   "b1",
		GroupID:     "g1",
		BindingKind: model.BindingChat,
		Filters:     []model.FilterRule{{Type: "length", Pattern: "5", Action: "transform"}},
	}
	r.AddBinding(b)

	out, err := r.Route(context.Background(), collab.GroupMessage{GroupID: "g1", Content: "hello world"}, model.BindingChat)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello", out[0])
}

func TestRouteEnforcesRateLimit(t *testing.T) {
	r := New()
	b := &model.Binding{
		BindingID:       "b1",
		GroupID:         "g1",
		BindingKind:     model.BindingChat,
		RateLimitMax:    1,
		RateLimitWindow: time.Minute,
	}
	r.AddBinding(b)

	msg := collab.GroupMessage{GroupID: "g1", Content: "hi"}
	_, err := r.Route(context.Background(), msg, model.BindingChat)
	require.NoError(t, err)

	out, err := r.Route(context.Background(), msg, model.BindingChat)
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestRemoveBinding(t *testing.T) {
	r := New()
	r.AddBinding(&model.Binding{BindingID: "b1", GroupID: "g1", BindingKind: model.BindingChat})
	r.RemoveBinding("b1")
	assert.Empty(t, r.BindingsFor("g1", model.BindingChat))
}

func TestRoutingErrors24hTracksRecentErrors(t *testing.T) {
	r := New()
	r.AddBinding(&model.Binding{
		BindingID:   "b1",
		GroupID:     "g1",
		BindingKind: model.BindingChat,
		Filters:     []model.FilterRule{{Type: "regex", Pattern: "(", Action: "block"}},
	})

	_, _ = r.Route(context.Background(), collab.GroupMessage{GroupID: "g1", Content: "x"}, model.BindingChat)
	assert.Equal(t, 1, r.RoutingErrors24h())
}
