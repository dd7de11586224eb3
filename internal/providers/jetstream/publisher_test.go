package jetstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-custody-ledger/internal/adapter"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/messaging"
	"github.com/feral-file/ff-custody-ledger/internal/mocks"
	"github.com/feral-file/ff-custody-ledger/internal/providers/jetstream"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type testPublisherMocks struct {
	ctrl   *gomock.Controller
	natsJS *mocks.MockNatsJetStream
	conn   *mocks.MockNatsConn
	js     *mocks.MockJetStream
}

func setupTestPublisher(t *testing.T) *testPublisherMocks {
	ctrl := gomock.NewController(t)
	return &testPublisherMocks{
		ctrl:   ctrl,
		natsJS: mocks.NewMockNatsJetStream(ctrl),
		conn:   mocks.NewMockNatsConn(ctrl),
		js:     mocks.NewMockJetStream(ctrl),
	}
}

var testConfig = jetstream.Config{
	URL:            "nats://localhost:4222",
	StreamName:     "LEDGER",
	MaxReconnects:  3,
	ReconnectWait:  time.Second,
	ConnectionName: "custody-ledger-relay",
}

func TestNewPublisher_DeclaresStream(t *testing.T) {
	tm := setupTestPublisher(t)

	tm.natsJS.EXPECT().Connect(testConfig.URL, gomock.Any()).Return(tm.conn, tm.js, nil)
	tm.js.EXPECT().
		CreateOrUpdateStream(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, cfg natsjs.StreamConfig) error {
			assert.Equal(t, "LEDGER", cfg.Name)
			assert.Equal(t, []string{"ledger.>"}, cfg.Subjects)
			assert.Equal(t, 2*time.Minute, cfg.Duplicates)
			return nil
		})

	pub, err := jetstream.NewPublisher(context.Background(), testConfig, tm.natsJS, adapter.NewJSON())
	require.NoError(t, err)
	assert.Equal(t, "jetstream", pub.Name())

	tm.conn.EXPECT().Close()
	pub.Close()
}

func TestNewPublisher_ConnectError(t *testing.T) {
	tm := setupTestPublisher(t)

	tm.natsJS.EXPECT().Connect(testConfig.URL, gomock.Any()).Return(nil, nil, errors.New("connection refused"))

	_, err := jetstream.NewPublisher(context.Background(), testConfig, tm.natsJS, adapter.NewJSON())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestNewPublisher_StreamError(t *testing.T) {
	tm := setupTestPublisher(t)

	tm.natsJS.EXPECT().Connect(testConfig.URL, gomock.Any()).Return(tm.conn, tm.js, nil)
	tm.js.EXPECT().CreateOrUpdateStream(gomock.Any(), gomock.Any()).Return(errors.New("insufficient resources"))
	tm.conn.EXPECT().Close()

	_, err := jetstream.NewPublisher(context.Background(), testConfig, tm.natsJS, adapter.NewJSON())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create stream LEDGER")
}

func TestPublisher_PublishNotification(t *testing.T) {
	tm := setupTestPublisher(t)

	tm.natsJS.EXPECT().Connect(testConfig.URL, gomock.Any()).Return(tm.conn, tm.js, nil)
	tm.js.EXPECT().CreateOrUpdateStream(gomock.Any(), gomock.Any()).Return(nil)

	pub, err := jetstream.NewPublisher(context.Background(), testConfig, tm.natsJS, adapter.NewJSON())
	require.NoError(t, err)

	tokenID := domain.TokenID(7)
	to := common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	n := &domain.Notification{
		Cursor:    12,
		ID:        "01JG8XAMPLE1234567890123456",
		Type:      domain.NotificationTypeOwnershipChanged,
		TokenID:   &tokenID,
		Payload:   domain.NotificationPayload{To: &to},
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tm.js.EXPECT().
		Publish(gomock.Any(), "ledger.ownership_changed", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, subject string, data []byte, opts ...natsjs.PublishOpt) (*natsjs.PubAck, error) {
			var msg messaging.NotificationMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			assert.Equal(t, uint64(12), msg.Cursor)
			assert.Equal(t, n.ID, msg.ID)
			assert.Equal(t, "7", *msg.TokenID)
			assert.Equal(t, to, *msg.Payload.To)
			assert.Len(t, opts, 1)
			return &natsjs.PubAck{Stream: "LEDGER", Sequence: 1}, nil
		})

	require.NoError(t, pub.PublishNotification(context.Background(), n))

	tm.js.EXPECT().
		Publish(gomock.Any(), "ledger.ownership_changed", gomock.Any(), gomock.Any()).
		Return(nil, errors.New("timeout"))

	err = pub.PublishNotification(context.Background(), n)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish notification")
}
