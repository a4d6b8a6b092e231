package flagx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value kept",
			args:    []string{"-d", "/vaults", "-x", "other"},
			allowed: []string{"-d"},
			want:    []string{"-d", "/vaults"},
		},
		{
			name:    "equals form kept",
			args:    []string{"--config=conf.json", "-y"},
			allowed: []string{"--config"},
			want:    []string{"--config=conf.json"},
		},
		{
			name:    "flag without value",
			args:    []string{"-v", "-d", "/vaults"},
			allowed: []string{"-v"},
			want:    []string{"-v"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "b"},
			allowed: nil,
			want:    []string{},
		},
		{
			name:    "value that looks like flag is not consumed",
			args:    []string{"-d", "-l", "5"},
			allowed: []string{"-d", "-l"},
			want:    []string{"-d", "-l", "5"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FilterArgs(tc.args, tc.allowed))
		})
	}
}
