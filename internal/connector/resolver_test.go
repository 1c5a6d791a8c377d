package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "parley/internal/errors"
	"parley/internal/llm"
)

type fakeHandler struct {
	name string
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: f.name, Parameters: llm.ParameterSchema{Type: "object"}}
}

func (f *fakeHandler) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return "done", nil
}

type fakeDirectory struct {
	toolkits []Toolkit
	err      error
}

func (f *fakeDirectory) Toolkits(ctx context.Context, userID string) ([]Toolkit, error) {
	return f.toolkits, f.err
}

type fakeFetcher struct {
	handlers map[string]Handler
	err      error
	gotNames []string
}

func (f *fakeFetcher) FetchHandlers(ctx context.Context, userID string, names []string) (map[string]Handler, error) {
	f.gotNames = names
	return f.handlers, f.err
}

func availableDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{}
	for _, n := range names {
		d.toolkits = append(d.toolkits, Toolkit{Name: n, Enabled: true, Connected: true})
	}
	return d
}

func TestNormalizeToolkits(t *testing.T) {
	got := NormalizeToolkits([]string{"Gmail", " NOTION", "gmail", "  ", ""})
	require.Equal(t, []string{"GMAIL", "NOTION"}, got)
}

func TestResolveSuccess(t *testing.T) {
	fetcher := &fakeFetcher{handlers: map[string]Handler{
		"gmail_send":   &fakeHandler{name: "gmail_send"},
		"notion_query": &fakeHandler{name: "notion_query"},
	}}
	r := NewResolver(availableDirectory("GMAIL", "NOTION"), fetcher, nil)

	set, err := r.Resolve(context.Background(), "user-1", []string{"Gmail", " NOTION", "gmail"})
	require.NoError(t, err)
	require.Equal(t, []string{"GMAIL", "NOTION"}, set.ToolkitNames())
	require.Equal(t, []string{"gmail_send", "notion_query"}, set.Names())
	require.Equal(t, []string{"GMAIL", "NOTION"}, fetcher.gotNames)
}

func TestResolveEmptyRequestIsValidationError(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := NewResolver(availableDirectory("GMAIL"), fetcher, nil)

	_, err := r.Resolve(context.Background(), "user-1", []string{"  ", ""})
	require.Error(t, err)
	require.True(t, apperrors.IsValidation(err))
	require.Nil(t, fetcher.gotNames, "handlers must not be fetched for an invalid request")
}

func TestResolveMissingIdentity(t *testing.T) {
	r := NewResolver(availableDirectory("GMAIL"), &fakeFetcher{}, nil)

	_, err := r.Resolve(context.Background(), "  ", []string{"gmail"})
	require.True(t, apperrors.IsAuthenticationRequired(err))
}

func TestResolveNamesAllUnavailableConnectors(t *testing.T) {
	r := NewResolver(availableDirectory("GMAIL"), &fakeFetcher{}, nil)

	_, err := r.Resolve(context.Background(), "user-1", []string{"gmail", "notion", "linear"})
	require.True(t, apperrors.IsUnavailableConnector(err))
	require.Contains(t, err.Error(), "LINEAR")
	require.Contains(t, err.Error(), "NOTION")
	require.NotContains(t, err.Error(), "GMAIL")
}

func TestResolveDisabledConnectorIsUnavailable(t *testing.T) {
	dir := &fakeDirectory{toolkits: []Toolkit{
		{Name: "GMAIL", Enabled: false, Connected: true},
	}}
	r := NewResolver(dir, &fakeFetcher{}, nil)

	_, err := r.Resolve(context.Background(), "user-1", []string{"gmail"})
	require.True(t, apperrors.IsUnavailableConnector(err))
}

func TestResolveNoInvocableHandlers(t *testing.T) {
	fetcher := &fakeFetcher{handlers: map[string]Handler{
		"broken": nil,
		"":       &fakeHandler{name: ""},
	}}
	r := NewResolver(availableDirectory("GMAIL"), fetcher, nil)

	_, err := r.Resolve(context.Background(), "user-1", []string{"gmail"})
	require.True(t, apperrors.IsNoToolsAvailable(err))
}

func TestToolSetInvoke(t *testing.T) {
	set := NewToolSet([]string{"GMAIL"}, map[string]Handler{
		"gmail_send": &fakeHandler{name: "gmail_send"},
	})

	out, err := set.Invoke(context.Background(), "gmail_send", map[string]any{"to": "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, "done", out)

	_, err = set.Invoke(context.Background(), "missing_tool", nil)
	require.Error(t, err)
}
