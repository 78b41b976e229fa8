package confusables

// charMap is the process-wide, read-only ASCII-confusable table: for
// each non-ASCII codepoint, the ASCII letter it is visually
// indistinguishable from, plus the script it comes from. Covers the
// UTS #39 scripts most abused in homograph attacks.
var charMap = map[rune]charEntry{
	// Cyrillic
	'а': {'a', "Cyrillic"},
	'е': {'e', "Cyrillic"},
	'о': {'o', "Cyrillic"},
	'р': {'p', "Cyrillic"},
	'с': {'c', "Cyrillic"},
	'х': {'x', "Cyrillic"},
	'у': {'y', "Cyrillic"},
	'і': {'i', "Cyrillic"},
	'ј': {'j', "Cyrillic"},
	'ѕ': {'s', "Cyrillic"},
	'ԁ': {'d', "Cyrillic"},
	'ԛ': {'q', "Cyrillic"},
	'ԝ': {'w', "Cyrillic"},
	'ѵ': {'v', "Cyrillic"},
	'ӏ': {'l', "Cyrillic"},
	'А': {'A', "Cyrillic"},
	'В': {'B', "Cyrillic"},
	'Е': {'E', "Cyrillic"},
	'К': {'K', "Cyrillic"},
	'М': {'M', "Cyrillic"},
	'Н': {'H', "Cyrillic"},
	'О': {'O', "Cyrillic"},
	'Р': {'P', "Cyrillic"},
	'С': {'C', "Cyrillic"},
	'Т': {'T', "Cyrillic"},
	'Х': {'X', "Cyrillic"},

	// Greek
	'α': {'a', "Greek"},
	'β': {'b', "Greek"},
	'ε': {'e', "Greek"},
	'ι': {'i', "Greek"},
	'κ': {'k', "Greek"},
	'ο': {'o', "Greek"},
	'ρ': {'p', "Greek"},
	'τ': {'t', "Greek"},
	'υ': {'u', "Greek"},
	'χ': {'x', "Greek"},
	'ν': {'v', "Greek"},
	'Α': {'A', "Greek"},
	'Β': {'B', "Greek"},
	'Ε': {'E', "Greek"},
	'Ζ': {'Z', "Greek"},
	'Η': {'H', "Greek"},
	'Ι': {'I', "Greek"},
	'Κ': {'K', "Greek"},
	'Μ': {'M', "Greek"},
	'Ν': {'N', "Greek"},
	'Ο': {'O', "Greek"},
	'Ρ': {'P', "Greek"},
	'Τ': {'T', "Greek"},
	'Υ': {'Y', "Greek"},
	'Χ': {'X', "Greek"},

	// Armenian
	'օ': {'o', "Armenian"},
	'ց': {'g', "Armenian"},
	'ս': {'u', "Armenian"},
	'ի': {'h', "Armenian"},
	'վ': {'n', "Armenian"},

	// Mathematical Alphanumeric Symbols (a representative sample; the
	// block spans U+1D400-U+1D7FF with consistent per-letter offsets).
	'\U0001D44E': {'a', "Mathematical Alphanumeric"},
	'\U0001D44F': {'b', "Mathematical Alphanumeric"},
	'\U0001D450': {'c', "Mathematical Alphanumeric"},
	'\U0001D451': {'d', "Mathematical Alphanumeric"},
	'\U0001D452': {'e', "Mathematical Alphanumeric"},
	'\U0001D45C': {'o', "Mathematical Alphanumeric"},
	'\U0001D45D': {'p', "Mathematical Alphanumeric"},

	// Fullwidth forms (U+FF21-FF3A upper, FF41-FF5A lower)
	'ａ': {'a', "Fullwidth"},
	'ｂ': {'b', "Fullwidth"},
	'ｃ': {'c', "Fullwidth"},
	'ｅ': {'e', "Fullwidth"},
	'ｏ': {'o', "Fullwidth"},
	'ｐ': {'p', "Fullwidth"},
	'Ａ': {'A', "Fullwidth"},
	'Ｅ': {'E', "Fullwidth"},
	'Ｏ': {'O', "Fullwidth"},

	// Enclosed Alphanumerics (circled letters, U+24B6-24E9)
	'ⓐ': {'a', "Enclosed Alphanumeric"},
	'ⓔ': {'e', "Enclosed Alphanumeric"},
	'ⓞ': {'o', "Enclosed Alphanumeric"},
	'Ⓐ': {'A', "Enclosed Alphanumeric"},
	'Ⓔ': {'E', "Enclosed Alphanumeric"},
	'Ⓞ': {'O', "Enclosed Alphanumeric"},

	// Latin Extended lookalikes
	'ƥ': {'p', "Latin Extended"},
	'ɡ': {'g', "Latin Extended"},
	'ʏ': {'y', "Latin Extended"},
	'ᴠ': {'v', "Latin Extended"},
	'ℓ': {'l', "Latin Extended"},
	'ⅰ': {'i', "Latin Extended"},
	'ⅿ': {'m', "Latin Extended"},
	'ø': {'o', "Latin Extended"},
	'đ': {'d', "Latin Extended"},
}

type charEntry struct {
	ascii  rune
	script string
}

// multiCharSubstitutions are applied after per-codepoint normalization,
// in a single left-to-right pass over the string.
var multiCharSubstitutions = []struct {
	from, to string
}{
	{"rn", "m"},
	{"vv", "w"},
	{"cl", "d"},
	{"cI", "d"},
	{"ii", "n"},
	{"I1", "l"},
	{"l1", "ll"},
	{"0o", "oo"},
	{"O0", "OO"},
}
