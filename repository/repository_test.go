package repository

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func TestEscapeLike_NeutralizesWildcards(t *testing.T) {
	require.Equal(t, `100\%`, escapeLike("100%"))
	require.Equal(t, `a\_b`, escapeLike("a_b"))
	require.Equal(t, `c:\\temp`, escapeLike(`c:\temp`))
	require.Equal(t, `\%\_\\`, escapeLike(`%_\`))
}

func TestLikePattern_WrapsEscapedInput(t *testing.T) {
	require.Equal(t, `%100\%%`, likePattern("100%"))
	require.Equal(t, `%plain%`, likePattern("plain"))
}

func TestLikePrefix(t *testing.T) {
	require.Equal(t, `abc\_%`, likePrefix("abc_"))
}

func TestAllowedSortColumns_RejectsUnknownColumn(t *testing.T) {
	require.True(t, model.AllowedSortColumns["stored_at"])
	require.True(t, model.AllowedSortColumns["from_domain"])
	require.True(t, model.AllowedSortColumns["subject_preview"])
	require.False(t, model.AllowedSortColumns["stored_at; DROP TABLE eml_records--"])
	require.False(t, model.AllowedSortColumns["hash_sha256"])
}
