package bytes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFmtMem(t *testing.T) {
	require.Equal(t, "0B", FmtMem(0))
	require.Equal(t, "512B", FmtMem(512))
	require.Equal(t, "1KB 0B", FmtMem(1024))
	require.Equal(t, "1KB 512B", FmtMem(1536))
	require.Equal(t, "3MB 212KB", FmtMem(3*1024*1024+212*1024))
	require.Equal(t, "2GB 0MB", FmtMem(2<<30))
	require.Equal(t, "1TB 1GB", FmtMem(1<<40+1<<30))
}
