package shardsift

import "regexp"

// HashType identifies the password-hash family of a credential string.
type HashType string

// Recognized credential families.
const (
	HashPlaintext   HashType = "plaintext"
	HashMD5Hex      HashType = "md5-hex"
	HashSHA1Hex     HashType = "sha1-hex"
	HashSHA256Hex   HashType = "sha256-hex"
	HashSHA512Hex   HashType = "sha512-hex"
	HashBcrypt      HashType = "bcrypt"
	HashArgon2      HashType = "argon2"
	HashMD5Crypt    HashType = "md5-crypt"
	HashSHA256Crypt HashType = "sha256-crypt"
	HashSHA512Crypt HashType = "sha512-crypt"
	HashSSHA        HashType = "ssha"
	HashSHA1Base64  HashType = "sha1-base64"
)

// classifierRule pairs an anchored pattern with the family it identifies.
type classifierRule struct {
	re  *regexp.Regexp
	typ HashType
}

// classifierRules is checked in order; the first match wins. Structured
// crypt formats come before the bare hex digests. The patterns do not
// overlap, so the order does not change which family a value gets.
var classifierRules = []classifierRule{
	{regexp.MustCompile(`^\$2[aby]\$\d{2}\$[A-Za-z0-9./]{53}$`), HashBcrypt},
	{regexp.MustCompile(`^\$argon2(?:i|d|id)\$v=\d+\$.*\$.*\$.*$`), HashArgon2},
	{regexp.MustCompile(`^\$1\$[^$]+\$[A-Za-z0-9./]+$`), HashMD5Crypt},
	{regexp.MustCompile(`^\$5\$[^$]+\$[A-Za-z0-9./]+$`), HashSHA256Crypt},
	{regexp.MustCompile(`^\$6\$[^$]+\$[A-Za-z0-9./]+$`), HashSHA512Crypt},
	{regexp.MustCompile(`^\{SSHA\}[A-Za-z0-9+/=]+$`), HashSSHA},
	{regexp.MustCompile(`^\{SHA\}[A-Za-z0-9+/=]+$`), HashSHA1Base64},
	{regexp.MustCompile(`^[A-Fa-f0-9]{32}$`), HashMD5Hex},
	{regexp.MustCompile(`^[A-Fa-f0-9]{40}$`), HashSHA1Hex},
	{regexp.MustCompile(`^[A-Fa-f0-9]{64}$`), HashSHA256Hex},
	{regexp.MustCompile(`^[A-Fa-f0-9]{128}$`), HashSHA512Hex},
}

// Classify recognizes the hash family of a trimmed credential string.
// Credentials matching no known family are plaintext with is_hash false;
// every other outcome reports is_hash true.
func Classify(credential string) (bool, HashType) {
	for _, rule := range classifierRules {
		if rule.re.MatchString(credential) {
			return true, rule.typ
		}
	}
	return false, HashPlaintext
}
