package discoverhotvideos

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divine-dvm/internal/common/errors"
	"divine-dvm/internal/common/nostr"
)

func TestRequestValidator_Validate(t *testing.T) {
	keys := mustKeys(t)
	v := NewRequestValidator(createTestConfig())

	sign := func(kind int, tags ...nostr.Tag) nostr.Event {
		ev := nostr.Event{Kind: kind, Tags: nostr.Tags(tags)}
		require.NoError(t, keys.SignEvent(&ev))
		return ev
	}

	tests := []struct {
		name    string
		event   nostr.Event
		wantErr string
	}{
		{name: "text input", event: sign(5300, textInput)},
		{name: "two text inputs", event: sign(5300, textInput, nostr.Tag{"i", "trending", "text"})},
		{name: "wrong kind", event: sign(1, textInput), wantErr: "unsupported kind 1"},
		{name: "no input", event: sign(5300), wantErr: "missing input"},
		{name: "url input", event: sign(5300, nostr.Tag{"i", "https://x", "url"}), wantErr: `unsupported input type "url"`},
		{name: "input without type", event: sign(5300, nostr.Tag{"i", "hot"}), wantErr: `unsupported input type ""`},
		{name: "mixed inputs", event: sign(5300, textInput, nostr.Tag{"i", "abc", "event"}), wantErr: "unsupported input type"},
		{name: "bad id", event: func() nostr.Event {
			ev := sign(5300, textInput)
			ev.ID = "not-hex"
			return ev
		}(), wantErr: "malformed event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.Validate(tt.event)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.event.ID, req.ID)
				assert.Equal(t, tt.event.PubKey, req.Requester)
				assert.Equal(t, InputDescriptor{Value: "hot", Type: InputTypeText}, req.Input())
				assert.Equal(t, OutputJSON, req.Output)
				return
			}
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequestValidator_ParseParams(t *testing.T) {
	v := NewRequestValidator(createTestConfig())

	tests := []struct {
		name      string
		tags      nostr.Tags
		wantMax   int
		wantSet   bool
		fallbacks []string
	}{
		{name: "none", tags: nil},
		{name: "valid", tags: nostr.Tags{{"param", "max_results", "10"}}, wantMax: 10, wantSet: true},
		{name: "whitespace", tags: nostr.Tags{{"param", "max_results", " 7 "}}, wantMax: 7, wantSet: true},
		{name: "zero", tags: nostr.Tags{{"param", "max_results", "0"}}, fallbacks: []string{"max_results"}},
		{name: "negative", tags: nostr.Tags{{"param", "max_results", "-3"}}, fallbacks: []string{"max_results"}},
		{name: "non numeric", tags: nostr.Tags{{"param", "max_results", "ten"}}, fallbacks: []string{"max_results"}},
		{name: "missing value", tags: nostr.Tags{{"param", "max_results"}}, fallbacks: []string{"max_results"}},
		{name: "above ceiling", tags: nostr.Tags{{"param", "max_results", "250"}}, wantMax: 250, wantSet: true, fallbacks: []string{"max_results"}},
		{name: "unknown", tags: nostr.Tags{{"param", "language", "en"}}, fallbacks: []string{"language"}},
		{
			name:      "duplicate keeps first",
			tags:      nostr.Tags{{"param", "max_results", "5"}, {"param", "max_results", "9"}},
			wantMax:   5,
			wantSet:   true,
			fallbacks: []string{"max_results"},
		},
		{
			name:      "invalid then valid",
			tags:      nostr.Tags{{"param", "max_results", "x"}, {"param", "max_results", "9"}},
			wantMax:   9,
			wantSet:   true,
			fallbacks: []string{"max_results"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := v.ParseParams(tt.tags)
			assert.Equal(t, tt.wantMax, p.MaxResults)
			assert.Equal(t, tt.wantSet, p.MaxResultsSet)
			var names []string
			for _, fb := range p.Fallbacks {
				names = append(names, fb.Name)
				assert.NotEmpty(t, fb.Reason)
			}
			assert.Equal(t, tt.fallbacks, names)
		})
	}
}

func TestParseOutput(t *testing.T) {
	assert.Equal(t, OutputJSON, parseOutput(nil))
	assert.Equal(t, OutputText, parseOutput(nostr.Tags{{"output", "text/plain"}}))
	assert.Equal(t, OutputText, parseOutput(nostr.Tags{{"output", "Text/Plain"}}))
	assert.Equal(t, OutputJSON, parseOutput(nostr.Tags{{"output", "application/json"}}))
}

func TestAddressedElsewhere(t *testing.T) {
	const us = "aa"
	assert.False(t, AddressedElsewhere(nostr.Event{}, us))
	assert.False(t, AddressedElsewhere(nostr.Event{Tags: nostr.Tags{{"p", "bb"}, {"p", us}}}, us))
	assert.True(t, AddressedElsewhere(nostr.Event{Tags: nostr.Tags{{"p", "bb"}}}, us))
}
