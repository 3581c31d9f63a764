package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImagesFromMarkdown(t *testing.T) {
	source := []byte(`---
title: Fitting day
hero_image: https://store/x/originals/blog/2024-10-29/hero.webp
---

# Fitting day

![driver](https://store/x/originals/blog/2024-10-29/a.webp)

Inline <img src="https://store/x/originals/blog/2024-10-29/b.webp" alt="b"> in text.

<div class="gallery">
  <img src="https://store/x/originals/blog/2024-10-29/c.webp" />
  <img src="https://store/x/originals/blog/2024-10-29/a.webp" />
</div>
`)

	refs := NewParser().Images(source)
	assert.Equal(t, []string{
		"https://store/x/originals/blog/2024-10-29/hero.webp",
		"https://store/x/originals/blog/2024-10-29/a.webp",
		"https://store/x/originals/blog/2024-10-29/b.webp",
		"https://store/x/originals/blog/2024-10-29/c.webp",
	}, refs)
}

func TestImagesFromPlainHTMLBody(t *testing.T) {
	source := []byte(`<p>Before</p>
<p><img src="https://store/x/originals/mms/2025-01-02/m.jpg"></p>
`)
	assert.Equal(t, []string{"https://store/x/originals/mms/2025-01-02/m.jpg"}, NewParser().Images(source))
}

func TestExtractFrontmatterWithoutBlock(t *testing.T) {
	meta := NewParser().ExtractFrontmatter([]byte("no frontmatter here"))
	assert.Empty(t, meta)
}
