package nostr

import (
	"encoding/json"
	"strings"
	"testing"

	gonostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedEvent(t *testing.T, keys *Keys) Event {
	t.Helper()
	ev := Event{
		Kind:    KindContentDiscoveryRequest,
		Content: "<hot> & \"fresh\"",
		Tags: Tags{
			{"i", "hot", "text"},
			{"param", "max_results", "10"},
		},
	}
	require.NoError(t, keys.SignEvent(&ev))
	return ev
}

func TestKeys_SignAndVerify(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	ev := newSignedEvent(t, keys)

	assert.Equal(t, keys.PublicKey(), ev.PubKey)
	assert.Len(t, ev.ID, 64)
	assert.Len(t, ev.Sig, 128)
	assert.NotZero(t, ev.CreatedAt)
	assert.NoError(t, ev.Verify())
}

func TestEvent_Verify_Tampered(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	t.Run("content changed", func(t *testing.T) {
		ev := newSignedEvent(t, keys)
		ev.Content = "something else"
		assert.ErrorIs(t, ev.Verify(), ErrInvalidID)
	})

	t.Run("signature from other key", func(t *testing.T) {
		other, err := GenerateKeys()
		require.NoError(t, err)
		ev := newSignedEvent(t, keys)
		forged := newSignedEvent(t, other)
		ev.Sig = forged.Sig
		assert.ErrorIs(t, ev.Verify(), ErrInvalidSignature)
	})

	t.Run("unsigned", func(t *testing.T) {
		ev := newSignedEvent(t, keys)
		ev.Sig = ""
		assert.ErrorIs(t, ev.Verify(), ErrMissingSignature)
	})
}

func TestEvent_InteropWithGoNostr(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	t.Run("ours verify there", func(t *testing.T) {
		ev := newSignedEvent(t, keys)
		lib := ev.Lib()
		ok, err := lib.CheckSignature()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ev.ID, lib.GetID())
	})

	t.Run("theirs verify here", func(t *testing.T) {
		lib := gonostr.Event{
			CreatedAt: gonostr.Now(),
			Kind:      KindContentDiscoveryRequest,
			Tags:      gonostr.Tags{{"i", "hot", "text"}},
			Content:   "hot",
		}
		require.NoError(t, lib.Sign(keys.SecretKeyHex()))

		ev := FromLib(lib)
		assert.NoError(t, ev.Verify())
		assert.Equal(t, keys.PublicKey(), ev.PubKey)
		assert.Equal(t, "hot", ev.Tags[0].Value())
	})
}

func TestEvent_SerializeDoesNotEscapeHTML(t *testing.T) {
	ev := Event{PubKey: "ab", CreatedAt: 1, Kind: 1, Content: "<a&b>"}
	s := string(ev.Serialize())

	assert.Equal(t, `[0,"ab",1,1,[],"<a&b>"]`, s)
}

func TestEvent_MarshalKeepsEmptyTags(t *testing.T) {
	b, err := json.Marshal(Event{Kind: 1})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tags":[]`)
}

func TestParseSecretKey(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	nsec, err := keys.Nsec()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"))

	fromHex, err := ParseSecretKey(keys.SecretKeyHex())
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey(), fromHex.PublicKey())

	fromBech, err := ParseSecretKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey(), fromBech.PublicKey())

	npub, err := keys.Npub()
	require.NoError(t, err)
	_, err = ParseSecretKey(npub)
	assert.ErrorIs(t, err, ErrInvalidSecretKey)

	for _, bad := range []string{"", "zz", strings.Repeat("0", 64), strings.Repeat("ab", 16)} {
		_, err := ParseSecretKey(bad)
		assert.ErrorIs(t, err, ErrInvalidSecretKey, "input %q", bad)
	}
}

func TestFilter_JSON(t *testing.T) {
	since := int64(100)
	f := Filter{
		Kinds:  []int{KindDivineVideo},
		Limit:  20,
		Search: "sort:hot",
		Since:  &since,
		Tags:   map[string][]string{"p": {"abc"}},
	}

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kinds":[34236],"limit":20,"search":"sort:hot","since":100,"#p":["abc"]}`, string(b))

	var back Filter
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)
}

func TestFilter_Matches(t *testing.T) {
	ev := Event{ID: "1", PubKey: "alice", Kind: KindDivineVideo, CreatedAt: 50, Tags: Tags{{"d", "vid"}, {"p", "bob"}}}
	since := int64(60)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"kind match", Filter{Kinds: []int{KindDivineVideo}}, true},
		{"kind mismatch", Filter{Kinds: []int{1}}, false},
		{"author mismatch", Filter{Authors: []string{"carol"}}, false},
		{"tag match", Filter{Tags: map[string][]string{"p": {"bob"}}}, true},
		{"tag mismatch", Filter{Tags: map[string][]string{"p": {"dave"}}}, false},
		{"too old", Filter{Since: &since}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestTags(t *testing.T) {
	tags := Tags{{"d", "video-1"}, {"i", "a", "text"}, {"i", "b", "url"}, {}}

	assert.Equal(t, "video-1", tags.Identifier())
	assert.Len(t, tags.FindAll("i"), 2)
	_, ok := tags.Find("missing")
	assert.False(t, ok)
	assert.Equal(t, "", Tag{}.Key())
	assert.Equal(t, "url", tags[2].At(2))
	assert.Equal(t, "", tags[2].At(5))
}
