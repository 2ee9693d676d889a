package affiliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	c := Default()

	tests := []struct {
		in   string
		want string
	}{
		{"computer science ", "Computer Science"},
		{"  COMPUTER   science", "Computer Science"},
		{"ingenieria civil", "Ingeniería Civil"},
		{"INGENIERÍA CIVIL", "Ingeniería Civil"},
		{"civil engineering", "Ingeniería Civil"},
		{"cs", "Computer Science"},
		{"law", "Law"},
		{"marine biology", "Marine Biology"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Normalize(tt.in))
		})
	}
}

func TestNormalize_NilCatalogTitleCases(t *testing.T) {
	var c *Catalog
	assert.Equal(t, "Computer Science", c.Normalize(" computer  science"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "diseno grafico", Key("  Diseño   GRÁFICO "))
}

func TestExpand(t *testing.T) {
	c := Default()

	got := c.Expand([]string{"Faculty of Health", "medicina", "law"})
	assert.Equal(t, []string{"Faculty of Health", "Medicine", "Nursing", "Psychology", "Law"}, got)
}

func TestFacultyOf(t *testing.T) {
	f, ok := Default().FacultyOf("derecho")
	require.True(t, ok)
	assert.Equal(t, "Facultad de Ciencias Empresariales y Derecho", f)

	_, ok = Default().FacultyOf("Astrology")
	assert.False(t, ok)
}

func TestParse_RejectsAmbiguousAlias(t *testing.T) {
	_, err := Parse([]byte(`
faculties:
  - name: A
    programs:
      - name: One
        aliases: [X]
      - name: Two
        aliases: [x]
`))
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("faculties: [::"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Same(t, Default(), c)
	assert.NotEmpty(t, c.Programs())
}
