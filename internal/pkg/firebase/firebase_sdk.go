package firebase

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog/log"
)

// TokenVerifier is the part of the Firebase auth client used to check
// bearer tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

var firebaseAuthClient TokenVerifier

func InitFirebaseSdk() {
	ctx := context.Background()
	app, appErr := firebase.NewApp(ctx, nil)
	if appErr != nil {
		log.Fatal().Err(appErr).Msg("error initializing app")
	}
	client, clientErr := app.Auth(ctx)
	if clientErr != nil {
		log.Fatal().Err(clientErr).Msg("error getting Auth client")
	}
	firebaseAuthClient = client
}

func VerifyIdToken(ctx context.Context, idToken string) (*auth.Token, error) {
	return firebaseAuthClient.VerifyIDToken(ctx, idToken)
}

func Verifier() TokenVerifier {
	return firebaseAuthClient
}
