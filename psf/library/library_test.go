package library_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/psf/library"
)

const goodProto = `
protocol https_google_com {
	name = "HTTPS";
	default_port = 443;
	transport = "TCP";
	detection_score { commonality = 0.9; suspicion = 0.05; }
	ROLE CLIENT { PHASE HANDSHAKE { FORMAT F; } PHASE DATA { FORMAT F; } }
	ROLE SERVER { PHASE HANDSHAKE { FORMAT F; } PHASE DATA { FORMAT F; } }
	FORMAT F {
		FIELD length:2 SEMANTIC:LENGTH target=payload;
		FIELD payload:var SEMANTIC:PAYLOAD;
	}
}
`

const malformedProto = `protocol this is not valid psf syntax {{{`

// TestLoadSkipsMalformedFilesButLoadsTheRest covers spec §4.3/§4.10's
// "PsfParseError: log and skip file; continue" policy.
func TestLoadSkipsMalformedFilesButLoadsTheRest(t *testing.T) {
	fsys := fstest.MapFS{
		"https.psf": {Data: []byte(goodProto)},
		"bad.psf":   {Data: []byte(malformedProto)},
	}

	lib, errs := library.Load(fsys)
	require.NotEmpty(t, errs)
	assert.Equal(t, 1, lib.Len())

	_, err := lib.Get("https_google_com")
	require.NoError(t, err)
}

// TestGetResolvesCaseAndSeparatorInsensitiveAliases covers spec §4.3's
// alias normalization.
func TestGetResolvesCaseAndSeparatorInsensitiveAliases(t *testing.T) {
	fsys := fstest.MapFS{"https.psf": {Data: []byte(goodProto)}}
	lib, errs := library.Load(fsys)
	require.Empty(t, errs)

	for _, alias := range []string{"https_google_com", "HTTPS-GOOGLE-COM", "httpsgooglecom"} {
		p, err := lib.Get(alias)
		require.NoError(t, err)
		assert.Equal(t, "https_google_com", p.ID)
	}
}

func TestGetRejectsUnknownProtocol(t *testing.T) {
	fsys := fstest.MapFS{"https.psf": {Data: []byte(goodProto)}}
	lib, _ := library.Load(fsys)

	_, err := lib.Get("does_not_exist")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.UnknownProtocol))
}

func TestMetaReportsEvasionScore(t *testing.T) {
	fsys := fstest.MapFS{"https.psf": {Data: []byte(goodProto)}}
	lib, _ := library.Load(fsys)

	m, err := lib.Meta("https_google_com")
	require.NoError(t, err)
	assert.Equal(t, uint16(443), m.DefaultPort)
	assert.InDelta(t, 0.9*(1-0.05), m.EvasionScore, 1e-9)
}

func TestLoadDetectsDuplicateProtocolID(t *testing.T) {
	fsys := fstest.MapFS{
		"a/https.psf": {Data: []byte(goodProto)},
		"b/https.psf": {Data: []byte(goodProto)},
	}
	lib, errs := library.Load(fsys)
	require.NotEmpty(t, errs)
	assert.Equal(t, 1, lib.Len())
}
