package isbn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "9780134685991", Clean("978-0-13-468599-1"))
	assert.Equal(t, "014044793X", Clean("0-14-044793-x"))
	assert.Equal(t, "9780134685991", Clean(" 978 0134685991 "))
	assert.Equal(t, "", Clean(""))
}

func TestValidTen(t *testing.T) {
	tests := []struct {
		isbn  string
		valid bool
	}{
		{"0306406152", true},
		{"0-306-40615-2", true},
		{"080442957X", true},
		{"0306406153", false}, // bad checksum
		{"030640615", false},  // too short
		{"03064061521", false},
		{"abcdefghij", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidTen(tt.isbn), "ISBN %q", tt.isbn)
	}
}

func TestValidThirteen(t *testing.T) {
	tests := []struct {
		isbn  string
		valid bool
	}{
		{"9780134685991", true},
		{"978-0-13-468599-1", true},
		{"9791234567896", true},  // 979 prefix
		{"9780134685992", false}, // bad checksum
		{"9770134685991", false}, // bad prefix
		{"978013468599", false},  // too short
		{"97801346859911", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidThirteen(tt.isbn), "ISBN %q", tt.isbn)
	}
}

func TestToThirteen(t *testing.T) {
	got, err := ToThirteen("0306406152")
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", got)

	got, err = ToThirteen("080442957X")
	require.NoError(t, err)
	assert.True(t, ValidThirteen(got))

	_, err = ToThirteen("0306406153")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestToTen(t *testing.T) {
	got, err := ToTen("9780306406157")
	require.NoError(t, err)
	assert.Equal(t, "0306406152", got)

	// 979 ISBNs have no ISBN-10 form
	got, err = ToTen("9791234567896")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = ToTen("9780306406158")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestToTenRoundTrip(t *testing.T) {
	for _, ten := range []string{"0306406152", "080442957X", "0140449132"} {
		thirteen, err := ToThirteen(ten)
		require.NoError(t, err)
		back, err := ToTen(thirteen)
		require.NoError(t, err)
		assert.Equal(t, ten, back)
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("978-0-13-468599-1")
	require.NoError(t, err)
	assert.Equal(t, "9780134685991", got)

	got, err = Normalize("0306406152")
	require.NoError(t, err)
	assert.Equal(t, "9780306406157", got)

	for _, bad := range []string{"", "12345", "9780134685992", "030640615"} {
		_, err := Normalize(bad)
		assert.ErrorIs(t, err, ErrInvalid, "input %q", bad)
	}
}

func TestFormatThirteen(t *testing.T) {
	assert.Equal(t, "978-0-134-68599-1", FormatThirteen("9780134685991"))
	assert.Equal(t, "12345", FormatThirteen("12345"))
}
