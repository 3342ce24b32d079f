// https://www.mongodb.com/docs/drivers/go/current/quick-start/

package mongo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const closeTimeout = 10 * time.Second

type Client struct {
	*mongo.Client
}

func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	return c.Disconnect(ctx)
}

// NewClient connects and pings the primary, so a bad URI fails here rather than on first use.
func NewClient(ctx context.Context, connectionURI string, opts ...func(c *ClientOptions)) (*Client, error) {
	opt := options.Client().ApplyURI(connectionURI)
	for _, v := range opts {
		v(opt)
	}

	client, err := mongo.Connect(ctx, opt)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, "ping")
	}
	return &Client{Client: client}, nil
}

func ParseTLSConfig(pemFile []byte) (*tls.Config, error) {
	tlsConfig := new(tls.Config)
	tlsConfig.RootCAs = x509.NewCertPool()
	ok := tlsConfig.RootCAs.AppendCertsFromPEM(pemFile)
	if !ok {
		return nil, errors.New("failed parsing pem file")
	}
	return tlsConfig, nil
}
