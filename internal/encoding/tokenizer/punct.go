package tokenizer

// plainByte marks ASCII letters and digits. Every other byte, including
// punctuation, whitespace and UTF-8 lead bytes, may start or end an affix.
var plainByte [256]bool

func init() {
	for b := '0'; b <= '9'; b++ {
		plainByte[b] = true
	}
	for b := 'a'; b <= 'z'; b++ {
		plainByte[b] = true
		plainByte[b-'a'+'A'] = true
	}
}

// isPlainWord reports whether s consists only of ASCII letters and digits, in
// which case no affix or infix rule built from punctuation can apply to it.
func isPlainWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !plainByte[s[i]] {
			return false
		}
	}
	return true
}
