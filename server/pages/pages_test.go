package pages

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPageEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Error("1ms", "404 - Not Found", `<script>alert("x")</script>`).Render(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "<title>404 - Not Found | Quick File Share</title>")
	assert.Contains(t, out, "<h1>404 - Not Found</h1>")
	assert.Contains(t, out, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;")
	assert.NotContains(t, out, `<script>alert("x")</script>`)
}

func TestDownloadPage(t *testing.T) {
	expires := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, Download(`id"><b>`, &expires).Render(context.Background(), &buf))
	out := buf.String()
	assert.Contains(t, out, `data-public-id="id&#34;&gt;&lt;b&gt;"`)
	assert.Contains(t, out, "Link expires Sat, 01 Mar 2025 12:00:00 UTC")
	assert.Contains(t, out, `dataset.publicId`)

	buf.Reset()
	require.NoError(t, Download("abc", nil).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "Link expires never")
}
