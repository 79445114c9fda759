package s3io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Client interface {
	Exists(ctx context.Context, key string) (bool, error)
	LatestMatching(ctx context.Context, prefix string) (string, int64, error)

	Upload(ctx context.Context, key string, source io.Reader) (int64, error)
	UploadCompressed(ctx context.Context, key string, source io.Reader) (int64, error)
	UploadEncrypted(ctx context.Context, key string, source io.Reader, compress bool) (int64, error)
	UploadPassphrase(ctx context.Context, key string, source io.Reader, compress bool) (int64, error)

	HasIdentities() bool
	HasRecipients() bool
	HasPassphrase() bool

	Download(ctx context.Context, key string, sink io.Writer) (int64, error)

	// Store returns the hierarchical store kept in the bucket.
	Store() *Store
}

// Options selects the bucket and credentials. Endpoint, AccessKey and
// SecretKey are for S3-compatible servers; when empty the shared config
// profile is used as is.
type Options struct {
	Profile   string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// IdentitiesFile and SecretsFile take "default" for the files under
	// ~/.s3shift.
	IdentitiesFile string
	SecretsFile    string

	// GrantACL is the canned ACL applied by Store.Grant.
	GrantACL string
	// OpTimeout bounds each store operation.
	OpTimeout time.Duration
}

type client struct {
	client      *s3.Client
	bucket      *string
	recipients  []age.Recipient
	identities  []age.Identity
	passkeys    []string
	passphrases map[string]string
	store       *Store
}

func NewClient(ctx context.Context, opts Options) (Client, error) {

	loadOpts := []func(*config.LoadOptions) error{
		config.WithSharedConfigProfile(opts.Profile),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	// load the various encryption keys
	recipients, err := loadRecipients(ctx, s3client, opts.Bucket)
	if err != nil {
		return nil, err
	}
	identities, err := loadIdentities(opts.IdentitiesFile)
	if err != nil {
		return nil, err
	}
	passkeys, passphrases, err := loadSecrets(opts.SecretsFile)
	if err != nil {
		return nil, err
	}

	cl := client{
		client:      s3client,
		bucket:      aws.String(opts.Bucket),
		recipients:  recipients,
		identities:  identities,
		passkeys:    passkeys,
		passphrases: passphrases,
	}
	cl.store = newStore(s3client, opts.Bucket, opts.GrantACL, opts.OpTimeout)

	return &cl, nil
}

func (cl *client) HasIdentities() bool {
	return len(cl.identities) > 0
}

func (cl *client) HasRecipients() bool {
	return len(cl.recipients) > 0
}

func (cl *client) HasPassphrase() bool {
	return len(cl.passkeys) > 0
}

func (cl *client) Store() *Store {
	return cl.store
}

// configPath resolves "default" to a file under ~/.s3shift.
func configPath(file, name string) (string, error) {
	if file != "default" {
		return file, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(u.HomeDir, ".s3shift", name), nil
}

// checkPermissions fails when a key file is readable by anyone but its
// owner. A missing file is reported as os.ErrNotExist.
func checkPermissions(file, what string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	perms := info.Mode()
	if perms&0077 != 0 {
		return &ErrPermissionsTooOpen{
			msg: fmt.Sprintf("Permissions on %s file are too open: %#o", what, perms),
		}
	}
	return nil
}

func loadRecipients(ctx context.Context, cl *s3.Client, bucket string) ([]age.Recipient, error) {

	resp, err := cl.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("repo/recipients.txt"),
	})
	if err != nil {
		var nosuchkey *types.NoSuchKey
		if errors.As(err, &nosuchkey) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	return age.ParseRecipients(resp.Body)
}

func loadIdentities(identitiesFile string) ([]age.Identity, error) {
	if identitiesFile == "" {
		return nil, nil
	}
	identitiesFile, err := configPath(identitiesFile, "identities.txt")
	if err != nil {
		return nil, err
	}

	if err := checkPermissions(identitiesFile, "identities"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	f, err := os.Open(identitiesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return age.ParseIdentities(f)
}

func loadSecrets(secretsFile string) ([]string, map[string]string, error) {
	if secretsFile == "" {
		return nil, nil, nil
	}
	secretsFile, err := configPath(secretsFile, "secrets.yml")
	if err != nil {
		return nil, nil, err
	}

	if err := checkPermissions(secretsFile, "secrets"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	data, err := os.ReadFile(secretsFile)
	if err != nil {
		return nil, nil, err
	}
	return parseSecrets(secretsFile, data)
}

func parseSecrets(secretsFile string, data []byte) ([]string, map[string]string, error) {
	type Data struct {
		Id         string
		Passphrase string
	}
	var raw []Data

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, &ErrNoSecretsFound{
			file: secretsFile,
		}
	}

	// the last entry is the one new uploads are encrypted with
	passphrases := make(map[string]string)
	var passkeys []string
	for _, entry := range raw {
		passkeys = append(passkeys, entry.Id)
		passphrases[entry.Id] = entry.Passphrase
	}

	return passkeys, passphrases, nil
}
