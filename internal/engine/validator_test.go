package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegalPlaysOnEmptyPile(t *testing.T) {
	hand := MustParseCards("4C", "4D", "4H", "9S", "2C")
	legal := LegalPlays(hand, nil, nil)

	// three singles, three pairs and one triple of fours, then the 9 and the 2
	require.Len(t, legal, 9)
	assert.Equal(t, MustParseCards("4C"), legal[0])
	assert.Equal(t, MustParseCards("2C"), legal[len(legal)-1])
	for _, combo := range legal {
		assert.True(t, IsUniform(combo), "%v", combo)
	}
}

func TestLegalPlaysAgainstTop(t *testing.T) {
	hand := MustParseCards("5C", "5D", "8C", "8D", "8H", "AC", "AS")
	cases := []struct {
		name string
		top  Play
		want [][]Card
	}{
		{
			name: "pair of sevens needs a higher pair",
			top:  Play{PlayerID: "x", Cards: MustParseCards("7C", "7S")},
			want: [][]Card{
				MustParseCards("8C", "8D"), MustParseCards("8C", "8H"), MustParseCards("8D", "8H"),
				MustParseCards("AC", "AS"),
			},
		},
		{
			name: "equal rank does not beat",
			top:  Play{PlayerID: "x", Cards: MustParseCards("AD", "AH")},
			want: nil,
		},
		{
			name: "triple needs a triple",
			top:  Play{PlayerID: "x", Cards: MustParseCards("6C", "6D", "6H")},
			want: [][]Card{MustParseCards("8C", "8D", "8H")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LegalPlays(hand, &tc.top, nil))
		})
	}
}

func TestLegalPlaysMustInclude(t *testing.T) {
	must := OpeningCard
	legal := LegalPlays(MustParseCards("3C", "3H", "KD"), nil, &must)
	assert.Equal(t, [][]Card{MustParseCards("3C"), MustParseCards("3C", "3H")}, legal)
}

func TestMatchLegalIgnoresOrder(t *testing.T) {
	legal := LegalPlays(MustParseCards("9C", "9H"), nil, nil)
	got, ok := MatchLegal(legal, MustParseCards("9H", "9C"))
	require.True(t, ok)
	assert.Equal(t, MustParseCards("9C", "9H"), got)

	_, ok = MatchLegal(legal, MustParseCards("9H", "9H"))
	assert.False(t, ok)
}

func TestIsUniform(t *testing.T) {
	assert.False(t, IsUniform(nil))
	assert.True(t, IsUniform(MustParseCards("QC", "QS")))
	assert.False(t, IsUniform(MustParseCards("QC", "KS")))
}
