package collect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCollectorSkipsFailingMount(t *testing.T) {
	c := DiskCollector{Mounts: []string{"/", "/vigil-no-such-mount"}}

	values, err := c.Collect(context.Background())
	require.NoError(t, err, "a bad mount must not drop readings from healthy mounts")

	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, v.Name)
	}
	assert.Contains(t, names, "disk_used_percent")
	assert.Contains(t, names, "disk_free_mb")
	assert.NotContains(t, names, "disk_used_percent_vigil-no-such-mount")
}

func TestDiskCollectorAllMountsFailing(t *testing.T) {
	c := DiskCollector{Mounts: []string{"/vigil-no-such-mount-a", "/vigil-no-such-mount-b"}}

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vigil-no-such-mount-a")
	assert.Contains(t, err.Error(), "vigil-no-such-mount-b")
}

func TestMountMetricNames(t *testing.T) {
	assert.Equal(t, "disk_used_percent", mountMetric("disk_used_percent", "/"))
	assert.Equal(t, "disk_used_percent_home", mountMetric("disk_used_percent", "/home"))
	assert.Equal(t, "disk_free_mb_mnt_data", mountMetric("disk_free_mb", "/mnt/data/"))
}
