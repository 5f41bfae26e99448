package utils

import (
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

const (
	tokenCtxKey string = "accessToken"
)

type AccessToken struct {
	Token    auth.Token
	RawToken string
}

func GetAccessToken(ctx *gin.Context) auth.Token {
	at := getAccessToken(ctx)
	return at.Token
}

func GetUserExternalId(ctx *gin.Context) string {
	token := GetAccessToken(ctx)
	return token.Subject
}

func getAccessToken(ctx *gin.Context) AccessToken {
	value, exists := ctx.Get(tokenCtxKey)
	if !exists {
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return AccessToken{}
	}
	return value.(AccessToken)
}

func SetAccessTokenCtx(token *AccessToken, ctx *gin.Context) {
	ctx.Set(tokenCtxKey, *token)
}
