package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/inreach/pkg/types"
)

func TestDeriveAddress(t *testing.T) {
	tests := []struct {
		name string
		row  types.ProfileRow
		want string
	}{
		{
			name: "simple",
			row:  types.ProfileRow{FirstName: "Jane", LastName: "Doe", Company: "Acme"},
			want: "jane.doe@acme.com",
		},
		{
			name: "legal suffix and punctuation",
			row:  types.ProfileRow{FirstName: "Jean-Luc", LastName: "O'Brien", Company: "Acme Widgets, Inc."},
			want: "jeanluc.obrien@acmewidgets.com",
		},
		{
			name: "multiple suffixes",
			row:  types.ProfileRow{FirstName: "Ana", LastName: "Silva", Company: "Globex Pty Ltd"},
			want: "ana.silva@globex.com",
		},
		{
			name: "leading word that looks like a suffix is kept",
			row:  types.ProfileRow{FirstName: "Li", LastName: "Wei", Company: "Co Ventures"},
			want: "li.wei@coventures.com",
		},
		{
			name: "missing company",
			row:  types.ProfileRow{FirstName: "Jane", LastName: "Doe"},
			want: "",
		},
		{
			name: "name with no ascii letters",
			row:  types.ProfileRow{FirstName: "李", LastName: "Doe", Company: "Acme"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAddress(tt.row))
		})
	}
}

func TestAddress_PrefersKnownEmail(t *testing.T) {
	row := types.ProfileRow{Email: " jane@acme.io ", FirstName: "Jane", LastName: "Doe", Company: "Acme"}
	assert.Equal(t, "jane@acme.io", Address(row))

	row.Email = ""
	assert.Equal(t, "jane.doe@acme.com", Address(row))
}
