package secrets

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/kitvault/kitvault/internal/crypto"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// SecretsManagerClient keeps the vault key as a hex secret string
type SecretsManagerClient struct {
	client     SecretsManagerAPI
	secretName string
}

// NewSecretsManagerClient creates a client using the default AWS credential
// chain
func NewSecretsManagerClient(ctx context.Context, secretName, region string) (*SecretsManagerClient, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSecretsManagerClientWithAPI(secretsmanager.NewFromConfig(cfg), secretName), nil
}

// NewSecretsManagerClientWithAPI wraps an existing client
func NewSecretsManagerClientWithAPI(client SecretsManagerAPI, secretName string) *SecretsManagerClient {
	return &SecretsManagerClient{
		client:     client,
		secretName: secretName,
	}
}

// GetOrCreateKey retrieves the vault key, creating a random one on first use
func (smc *SecretsManagerClient) GetOrCreateKey(ctx context.Context) ([]byte, error) {
	result, err := smc.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(smc.secretName),
	})
	if err != nil {
		if isNotFound(err) {
			return smc.createKey(ctx)
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", smc.secretName)
	}

	key, err := hex.DecodeString(strings.TrimSpace(*result.SecretString))
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret: %w", err)
	}
	return key, nil
}

func (smc *SecretsManagerClient) createKey(ctx context.Context) ([]byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	_, err = smc.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(smc.secretName),
		SecretString: aws.String(hex.EncodeToString(key)),
		Description:  aws.String("kitvault note vault encryption key"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create secret: %w", err)
	}

	return key, nil
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return true
	}
	var coded interface{ ErrorCode() string }
	return errors.As(err, &coded) && coded.ErrorCode() == "ResourceNotFoundException"
}
