package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/jwt"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/Synternet/stellar-price-feeder/pkg/feeder"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// SplitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func SplitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))

	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}

	return nonEmptyStrings
}

func setDefault(field string, value string) {
	if os.Getenv(field) == "" {
		os.Setenv(field, value)
	}
}

func durationEnv(field string, def time.Duration) time.Duration {
	v := os.Getenv(field)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Invalid duration in environment, switching to default", "field", field, "error", err, "default", def)
		return def
	}
	return d
}

func intEnv(field string, def int) int {
	v := os.Getenv(field)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid number in environment, switching to default", "field", field, "error", err, "default", def)
		return def
	}
	return i
}

// request builds an aggregation request over the most recent complete periods.
func request(now time.Time) (feeder.Request, error) {
	base, err := types.ParseAsset(*flagBase)
	if err != nil {
		return feeder.Request{}, err
	}
	return feeder.LastPeriods(base, *flagAssets.Value, *flagPeriod, *flagPeriodCount, now), nil
}

func makeNats(name, urls, creds, nkey, userJWT, caCert, cert, key string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
	}
	switch {
	case creds != "":
		opts = append(opts, nats.UserCredentials(creds))
	case userJWT != "" && nkey != "":
		opts = append(opts, nats.UserJWTAndSeed(userJWT, nkey))
	}
	if caCert != "" {
		opts = append(opts, nats.RootCAs(caCert))
	}
	if cert != "" && key != "" {
		opts = append(opts, nats.ClientCert(cert, key))
	}
	return nats.Connect(urls, opts...)
}

// CreateUser creates NATS user NKey and JWT from given account seed NKey.
func CreateUser(seed string) (*string, *string, error) {
	accountSeed := []byte(seed)

	accountKeys, err := nkeys.FromSeed(accountSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get account key from seed: %w", err)
	}

	accountPubKey, err := accountKeys.PublicKey()
	if err != nil {
		return nil, nil, fmt.Errorf("error getting public key: %w", err)
	}

	userKeys, err := nkeys.CreateUser()
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create account key: %w", err)
	}

	userSeed, err := userKeys.Seed()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get seed: %w", err)
	}
	nkey := string(userSeed)

	userPubKey, err := userKeys.PublicKey()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot get user's public key: %w", err)
	}

	claims := jwt.NewUserClaims(userPubKey)
	claims.Issuer = accountPubKey
	jwt, err := claims.Encode(accountKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("error encoding token to jwt: %w", err)
	}

	return &nkey, &jwt, nil
}
