package auth

import "github.com/gin-gonic/gin"

// ContextUserKey は、ハンドラー間で認証済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

func setContextIdentity(c *gin.Context, identity *Identity) {
	c.Set(ContextUserKey, identity)
}

// IdentityFromContext はゲートが設定した Identity を返します。
func IdentityFromContext(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok && identity != nil
}
