package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	text, err := Decode([]byte("héllo"))
	require.NoError(t, err)
	require.Equal(t, "héllo", text)

	text, err = Decode([]byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	require.Equal(t, "café", text)
}

func TestLocalSourceListsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for name, body := range map[string]string{
		"b.md":              "# B",
		"a.txt":             "a",
		"nested/c.MARKDOWN": "c",
		"skip.pdf":          "x",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	src, err := New("local", map[string]interface{}{"dir": dir})
	require.NoError(t, err)
	files, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, filepath.Join(dir, "a.txt"), files[0].Path)
	require.Equal(t, filepath.Join(dir, "b.md"), files[1].Path)
	require.Equal(t, filepath.Join(dir, "nested", "c.MARKDOWN"), files[2].Path)

	data, err := src.Read(context.Background(), files[1].Path)
	require.NoError(t, err)
	require.Equal(t, "# B", string(data))

	_, err = src.Read(context.Background(), "/etc/passwd")
	require.Error(t, err)
}

func TestNewUnknownSource(t *testing.T) {
	_, err := New("ftp", nil)
	require.Error(t, err)
	_, err = New("local", map[string]interface{}{})
	require.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	require.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	require.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	require.Equal(t, "https://s3.example.com", endpointURL("https://s3.example.com", false))
}
