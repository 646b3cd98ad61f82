package install

import (
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestExpectedDigest(t *testing.T) {
	sha256 := "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"
	sha512 := "f7fbba6e0636f890e56fbbf3283e524c6fa3204ae298382d624741d0dc6638326e282c41be5e4254d8820772c5518a2c5a8c0c7f7eda19594a7eb539453e1ed7"

	tests := []struct {
		name    string
		content string
		want    digest.Digest
		ok      bool
	}{
		{name: "sha256 line", content: sha256 + "  tool.tgz", want: digest.NewDigestFromEncoded(digest.SHA256, sha256), ok: true},
		{name: "sha512 line", content: sha512 + "  tool.tgz", want: digest.NewDigestFromEncoded(digest.SHA512, sha512), ok: true},
		{name: "nested path", content: sha256 + "  ./dist/tool.tgz", want: digest.NewDigestFromEncoded(digest.SHA256, sha256), ok: true},
		{name: "upper case", content: "SHA256:" + sha256, want: digest.NewDigestFromEncoded(digest.SHA256, sha256), ok: true},
		{name: "two bare digests are ambiguous", content: sha256 + "\n" + sha256},
		{name: "short hex", content: "abc123  tool.tgz"},
		{name: "not hex", content: "zz26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae  tool.tgz"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			got, ok := expectedDigest(tc.content, "tool.tgz")
			r.Equal(tc.ok, ok)
			r.Equal(tc.want, got)
		})
	}
}
