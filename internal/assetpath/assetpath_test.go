package assetpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "customer dashed date",
			key:  Key{Kind: KindCustomers, Folder: "leenamgu-8768", Date: "2024-10-29", FileName: "leenamgu_s5_swing_01.webp"},
			want: "originals/customers/leenamgu-8768/2024-10-29/leenamgu_s5_swing_01.webp",
		},
		{
			name: "customer dotted date",
			key:  Key{Kind: KindCustomers, Folder: "leenamgu-8768", Date: "2024.10.29", FileName: "leenamgu_s5_swing_01.webp"},
			want: "originals/customers/leenamgu-8768/2024-10-29/leenamgu_s5_swing_01.webp",
		},
		{
			name: "product with sub-kind and no date",
			key:  Key{Kind: KindProducts, Folder: "black-beryl", SubKind: "detail", FileName: "front.webp"},
			want: "originals/products/black-beryl/detail/front.webp",
		},
		{
			name: "mms keyed by date and message folder",
			key:  Key{Kind: KindMMS, Folder: "155", Date: "20251213", FileName: "image.jpg"},
			want: "originals/mms/155/2025-12-13/image.jpg",
		},
		{
			name: "blog by date",
			key:  Key{Kind: KindBlog, Date: "2025/05/01", FileName: "hero.png"},
			want: "originals/blog/2025-05-01/hero.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalPathIsDeterministicAcrossDateForms(t *testing.T) {
	a, err := CanonicalPath(KindCustomers, "leenamgu-8768", "2024-10-29", "a.webp")
	require.NoError(t, err)
	b, err := CanonicalPath(KindCustomers, "leenamgu-8768", "2024.10.29", "a.webp")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, dateA := Decompose(a)
	_, dateB := Decompose(b)
	assert.Equal(t, "2024-10-29", dateA)
	assert.Equal(t, dateA, dateB)
}

func TestCanonicalPathRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		key  Key
	}{
		{"empty file name", Key{Kind: KindCustomers, Folder: "kim-1234", Date: "2024-01-01", FileName: "  "}},
		{"dot file name", Key{Kind: KindCustomers, Folder: "kim-1234", Date: "2024-01-01", FileName: ".."}},
		{"extension only", Key{Kind: KindCustomers, Folder: "kim-1234", Date: "2024-01-01", FileName: ".webp"}},
		{"separator in name", Key{Kind: KindCustomers, Folder: "kim-1234", Date: "2024-01-01", FileName: "a/b.webp"}},
		{"unknown folder", Key{Kind: KindCustomers, Folder: "unknown", Date: "2024-01-01", FileName: "a.webp"}},
		{"unknown prefixed folder", Key{Kind: KindCustomers, Folder: "unknown-1234", Date: "2024-01-01", FileName: "a.webp"}},
		{"missing folder", Key{Kind: KindCustomers, Date: "2024-01-01", FileName: "a.webp"}},
		{"missing date", Key{Kind: KindCustomers, Folder: "kim-1234", FileName: "a.webp"}},
		{"bad date", Key{Kind: KindCustomers, Folder: "kim-1234", Date: "2024-13-40", FileName: "a.webp"}},
		{"uppercase folder", Key{Kind: KindProducts, Folder: "Black Beryl", FileName: "a.webp"}},
		{"unknown kind", Key{Kind: "videos", Folder: "x", FileName: "a.webp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonical(tt.key)
			var invalid *InvalidNameError
			require.True(t, errors.As(err, &invalid), "want InvalidNameError, got %v", err)
		})
	}
}

func TestCanonicalPathNormalizesUnicode(t *testing.T) {
	// "이" as decomposed jamo (NFD), as produced by macOS file systems.
	nfd := "\u110b\u1175.webp"
	got, err := CanonicalPath(KindCustomers, "lee-1234", "2024-01-01", nfd)
	require.NoError(t, err)
	assert.Equal(t, "originals/customers/lee-1234/2024-01-01/\uc774.webp", got)
}

func TestUnmatchedPath(t *testing.T) {
	got, err := UnmatchedPath("2024.11.13", "IMG_0001.jpg")
	require.NoError(t, err)
	assert.Equal(t, "unmatched/2024-11-13/IMG_0001.jpg", got)
	assert.NotContains(t, got, unknownFolder)
}

func TestNormalizeDate(t *testing.T) {
	for _, in := range []string{"2024-10-29", "2024.10.29", "2024/10/29", "20241029", " 2024-10-29 "} {
		got, err := NormalizeDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2024-10-29", got, in)
	}

	for _, in := range []string{"", "2024-10", "29.10.2024", "yesterday"} {
		_, err := NormalizeDate(in)
		assert.Error(t, err, in)
	}

	assert.True(t, SameDate("2024.10.29", "2024-10-29"))
	assert.False(t, SameDate("2024.10.29", "2024-10-30"))
	assert.False(t, SameDate("garbage", "garbage"))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Customers ")
	require.NoError(t, err)
	assert.Equal(t, KindCustomers, k)

	_, err = ParseKind("videos")
	var invalid *InvalidNameError
	require.ErrorAs(t, err, &invalid)
	for _, known := range Kinds() {
		assert.Contains(t, invalid.Reason, string(known))
	}
}

func TestFolderName(t *testing.T) {
	got, err := FolderName("leenamgu", "010-9170-8768")
	require.NoError(t, err)
	assert.Equal(t, "leenamgu-8768", got)

	got, err = FolderName("Choi Seung Nam", "01012345678")
	require.NoError(t, err)
	assert.Equal(t, "choi-seung-nam-5678", got)

	_, err = FolderName("leenamgu", "12")
	assert.Error(t, err)

	_, err = FolderName("???", "010-1111-2222")
	assert.Error(t, err)
}

func TestDecompose(t *testing.T) {
	folder, date := Decompose("originals/customers/leenamgu-8768/2024.10.29/a.webp")
	assert.Equal(t, "originals/customers/leenamgu-8768/2024.10.29", folder)
	assert.Equal(t, "2024-10-29", date)

	folder, date = Decompose("originals/products/black-beryl/detail/a.webp")
	assert.Equal(t, "originals/products/black-beryl/detail", folder)
	assert.Empty(t, date)

	folder, date = Decompose("a.webp")
	assert.Empty(t, folder)
	assert.Empty(t, date)
}

func TestRebaseAndPrefix(t *testing.T) {
	got, err := Rebase("originals/customers/leenalgu-8768/2024-10-29/a.webp",
		"originals/customers/leenalgu-8768", "originals/customers/leenamgu-8768")
	require.NoError(t, err)
	assert.Equal(t, "originals/customers/leenamgu-8768/2024-10-29/a.webp", got)

	_, err = Rebase("originals/customers/leenalgu-87680/a.webp", "originals/customers/leenalgu-8768", "x")
	assert.Error(t, err)

	assert.True(t, HasPrefix("originals/customers/a-1/x.webp", "originals/customers/a-1/"))
	assert.False(t, HasPrefix("originals/customers/a-10/x.webp", "originals/customers/a-1"))

	p, err := Prefix(KindCustomers, "leenamgu-8768")
	require.NoError(t, err)
	assert.Equal(t, "originals/customers/leenamgu-8768", p)

	root, ok := EntityRoot("originals/customers/leenamgu-8768/2024-10-29/a.webp")
	assert.True(t, ok)
	assert.Equal(t, p, root)
	_, ok = EntityRoot("originals/blog/2024-10-29/a.webp")
	assert.False(t, ok)
}
