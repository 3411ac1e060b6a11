package auth

import "strings"

// Outcome はゲートの判定結果です。
type Outcome int

const (
	// OutcomeSession はセッションに本人情報があり、トークン検証を省略して通過します。
	OutcomeSession Outcome = iota
	// OutcomeNoHeader は Authorization ヘッダーがありません。
	OutcomeNoHeader
	// OutcomeBadScheme はスキームが "Bearer" ではありません。
	OutcomeBadScheme
	// OutcomeEmptyCredential は "Bearer" の後にトークンがありません。
	OutcomeEmptyCredential
	// OutcomeTokenInvalid は署名不一致・形式不正・期限切れのトークンです。
	OutcomeTokenInvalid
	// OutcomeAuthorized はトークンが有効で、セッションに本人情報を書き込んで通過します。
	OutcomeAuthorized
)

var outcomeNames = map[Outcome]string{
	OutcomeSession:         "session",
	OutcomeNoHeader:        "no_header",
	OutcomeBadScheme:       "bad_scheme",
	OutcomeEmptyCredential: "empty_credential",
	OutcomeTokenInvalid:    "token_invalid",
	OutcomeAuthorized:      "authorized",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Allowed は後続のハンドラーを実行してよいかを返します。
func (o Outcome) Allowed() bool {
	return o == OutcomeSession || o == OutcomeAuthorized
}

// Message は 401 応答に載せるメッセージを返します。
// ヘッダー欠落・スキーム不一致・空トークンは区別できないよう同じメッセージになります。
func (o Outcome) Message() string {
	switch o {
	case OutcomeNoHeader, OutcomeBadScheme, OutcomeEmptyCredential:
		return MessageMissingAuthorization
	case OutcomeTokenInvalid:
		return MessageInvalidToken
	default:
		return ""
	}
}

// Decision は Evaluate の結果です。
// OutcomeAuthorized のとき Claims、OutcomeTokenInvalid のとき Err が設定されます。
type Decision struct {
	Outcome Outcome
	Claims  *Claims
	Err     error
}

const bearerScheme = "Bearer"

// Evaluate はセッションと Authorization ヘッダーから認可を判定します。
// 先に一致した規則で決まり、副作用はありません。
//
//  1. セッションに本人情報があれば通過
//  2. ヘッダーがなければ拒否
//  3. 最初の空白で分割したスキームが "Bearer"（大文字小文字を区別）でなければ拒否
//  4. トークンが空なら拒否
//  5. verifier で検証し、成功なら通過、失敗なら "Invalid Token" で拒否
func Evaluate(session *Identity, authorization string, verifier TokenVerifier) Decision {
	if session != nil {
		return Decision{Outcome: OutcomeSession}
	}
	if authorization == "" {
		return Decision{Outcome: OutcomeNoHeader}
	}

	scheme, credential := splitAuthorization(authorization)
	if scheme != bearerScheme {
		return Decision{Outcome: OutcomeBadScheme}
	}
	if credential == "" {
		return Decision{Outcome: OutcomeEmptyCredential}
	}

	claims, err := verifier.Verify(credential)
	if err != nil {
		return Decision{Outcome: OutcomeTokenInvalid, Err: err}
	}
	return Decision{Outcome: OutcomeAuthorized, Claims: claims}
}

func splitAuthorization(header string) (scheme, credential string) {
	scheme, credential, _ = strings.Cut(header, " ")
	return scheme, credential
}

// BearerToken は Authorization ヘッダーから Bearer トークンを取り出します。
func BearerToken(header string) (string, bool) {
	scheme, credential := splitAuthorization(header)
	if scheme != bearerScheme || credential == "" {
		return "", false
	}
	return credential, true
}
