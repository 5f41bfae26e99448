package keymgmt

import (
	"context"
	"fmt"
	"strings"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/onflow/flow-go-sdk"
	"github.com/onflow/flow-go-sdk/crypto"
	"github.com/onflow/flow-go-sdk/crypto/cloudkms"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	pollMin     = 100 * time.Millisecond
	pollMax     = 5 * time.Second
	pollTimeout = 60 * time.Second
)

var noHash crypto.HashAlgorithm

type PrivateKey struct {
	Index    int                       `json:"index"`
	Type     string                    `json:"type"`
	Value    string                    `json:"-"`
	SignAlgo crypto.SignatureAlgorithm `json:"-"`
	HashAlgo crypto.HashAlgorithm      `json:"-"`
}

type publicKeyGetter interface {
	GetPublicKey(ctx context.Context, key cloudkms.Key) (crypto.PublicKey, crypto.HashAlgorithm, error)
}

// GenerateAsymetricKey creates a new KMS signing key in the configured key
// ring and returns it as a Flow account key.
func GenerateAsymetricKey(ctx context.Context, kmsClient *cloudkms.Client, keyIndex, weight int) (*flow.AccountKey, *PrivateKey, error) {
	u := uuid.New()

	googleKmsProjectId := viper.GetString("GOOGLE_KMS_PROJECT_ID")
	googleKmsLocationId := viper.GetString("GOOGLE_KMS_LOCATION_ID")
	googleKmsKeyRingId := viper.GetString("GOOGLE_KMS_KEYRING_ID")

	k, err := createAsymetricKey(
		ctx,
		fmt.Sprintf("projects/%s/locations/%s/keyRings/%s", googleKmsProjectId, googleKmsLocationId, googleKmsKeyRingId),
		fmt.Sprintf("flow-authz-custodial-key-%s", u.String()),
	)
	if err != nil {
		return nil, nil, err
	}

	pub, h, err := GetPublicKey(ctx, kmsClient, *k)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("failed to get public key for Google KMS key, keyId: %s", k.KeyID))
		return nil, nil, err
	}

	f := flow.NewAccountKey().
		SetPublicKey(pub).
		SetHashAlgo(h).
		SetWeight(weight)
	f.Index = keyIndex

	p := &PrivateKey{
		Index:    keyIndex,
		Type:     "google_kms",
		Value:    k.ResourceID(),
		SignAlgo: pub.Algorithm(),
		HashAlgo: h,
	}

	return f, p, nil
}

// LoadSigner returns a signer for the KMS key version named by resourceID,
// waiting for the key to finish generating.
func LoadSigner(ctx context.Context, kmsClient *cloudkms.Client, resourceID string) (*cloudkms.Signer, error) {
	key, err := cloudkms.KeyFromResourceID(resourceID)
	if err != nil {
		return nil, err
	}
	if _, _, err := GetPublicKey(ctx, kmsClient, key); err != nil {
		return nil, err
	}
	return kmsClient.SignerForKey(ctx, key)
}

// GetPublicKey polls KMS until the key has been generated.
func GetPublicKey(ctx context.Context, kmsClient publicKeyGetter, kmsKey cloudkms.Key) (crypto.PublicKey, crypto.HashAlgorithm, error) {
	b := &backoff.Backoff{
		Min:    pollMin,
		Max:    pollMax,
		Factor: 5,
		Jitter: true,
	}

	deadline := time.Now().Add(pollTimeout)

	log.Trace().Msg(fmt.Sprintf("Getting public key for KMS key, keyId: %s", kmsKey.KeyID))

	for {
		publicKey, hashAlgo, err := kmsClient.GetPublicKey(ctx, kmsKey)
		if err == nil && publicKey != nil {
			return publicKey, hashAlgo, nil
		}
		// non-retryable error
		if err != nil && !strings.Contains(err.Error(), "KEY_PENDING_GENERATION") {
			return nil, noHash, err
		}

		if time.Now().After(deadline) {
			return nil, noHash, fmt.Errorf("timeout while trying to get public key of %s", kmsKey.KeyID)
		}

		log.Trace().Msg("KMS key is pending creation, will retry")
		select {
		case <-ctx.Done():
			return nil, noHash, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func createAsymetricKey(ctx context.Context, parent string, id string) (*cloudkms.Key, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, err
	}

	defer client.Close()

	r := &kmspb.CreateCryptoKeyRequest{
		Parent:      parent,
		CryptoKeyId: id,
		CryptoKey: &kmspb.CryptoKey{
			Purpose: kmspb.CryptoKey_ASYMMETRIC_SIGN,
			VersionTemplate: &kmspb.CryptoKeyVersionTemplate{
				Algorithm: kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256,
			},
			Labels: map[string]string{
				"service": "flow-authz",
			},
		},
	}

	gk, err := client.CreateCryptoKey(ctx, r)
	if err != nil {
		return nil, err
	}

	// cryptoKeyVersions/1 is the version KMS creates with the key
	k, err := cloudkms.KeyFromResourceID(fmt.Sprintf("%s/cryptoKeyVersions/1", gk.Name))
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(k.ResourceID(), gk.Name) {
		return nil, fmt.Errorf("created Google KMS key name %s does not match %s", k.ResourceID(), gk.Name)
	}

	return &k, nil
}
