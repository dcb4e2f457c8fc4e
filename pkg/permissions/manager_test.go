package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/serialgate/serialgate/pkg/identity"
	"github.com/serialgate/serialgate/pkg/logger"
	"github.com/serialgate/serialgate/pkg/models"
	"github.com/serialgate/serialgate/pkg/token"
)

var errBindFailed = errors.New("bind failed")

func strPtr(s string) *string { return &s }

// stablePort returns a descriptor that classifies as persistable on the
// USB-triple key set.
func stablePort() *models.SerialPort {
	return &models.SerialPort{
		Token:        token.New(),
		Path:         "/dev/ttyUSB0",
		DisplayName:  strPtr("USB-Serial Controller"),
		HasVendorID:  true,
		VendorID:     0x1234,
		HasProductID: true,
		ProductID:    0x5678,
		SerialNumber: strPtr("SN1"),
	}
}

// ephemeralPort returns a descriptor with no display name and no identity
// fields: only ever grantable ephemerally.
func ephemeralPort() *models.SerialPort {
	return &models.SerialPort{
		Token: token.New(),
		Path:  "/dev/ttyUSB1",
	}
}

type fakeHandle struct {
	client     PortManagerClient
	disconnect func()
	closed     int
	clientErr  error
}

func (h *fakeHandle) SetClient(client PortManagerClient) error {
	if h.clientErr != nil {
		return h.clientErr
	}

	h.client = client

	return nil
}

func (h *fakeHandle) SetDisconnectHandler(fn func()) { h.disconnect = fn }

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

type fakeBinder struct {
	handle *fakeHandle
	err    error
	binds  int
}

func (b *fakeBinder) BindPortManager() (PortManagerHandle, error) {
	b.binds++

	if b.err != nil {
		return nil, b.err
	}

	b.handle = &fakeHandle{}

	return b.handle, nil
}

type recordingObserver struct {
	name    string
	added   []*models.SerialPort
	removed []*models.SerialPort
	log     *[]string
}

func (o *recordingObserver) OnPortAdded(port *models.SerialPort) {
	o.added = append(o.added, port)

	if o.log != nil {
		*o.log = append(*o.log, o.name)
	}
}

func (o *recordingObserver) OnPortRemoved(port *models.SerialPort) {
	o.removed = append(o.removed, port)

	if o.log != nil {
		*o.log = append(*o.log, o.name)
	}
}

func newTestManager(store ObjectStore) (*Manager, *fakeBinder) {
	binder := &fakeBinder{}
	classifier := identity.NewClassifier(identity.KeySetUSBTriple)

	return NewManager(store, binder, classifier, logger.NewTestLogger()), binder
}

func TestGrantStablePortGoesDurable(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(NewKVObjectStore(newMemKV()))
	origin := models.Origin("https://example.com")

	port := stablePort()
	require.NoError(t, m.GrantPortPermission(ctx, origin, port))

	// A reconnect hands out a fresh token; identity drives the match.
	reconnected := stablePort()
	reconnected.Token = token.New()

	has, err := m.HasPortPermission(ctx, origin, reconnected)
	require.NoError(t, err)
	assert.True(t, has)

	// A different device with the same shape but another serial does not.
	other := stablePort()
	other.Token = token.New()
	other.SerialNumber = strPtr("SN2")

	has, err = m.HasPortPermission(ctx, origin, other)
	require.NoError(t, err)
	assert.False(t, has)

	// Nor does the same device for another origin.
	has, err = m.HasPortPermission(ctx, "https://other.example", reconnected)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGrantEphemeralPortNeverTouchesDurableStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any durable-store call fails the test.
	mockStore := NewMockObjectStore(ctrl)

	ctx := context.Background()
	m, _ := newTestManager(mockStore)
	origin := models.Origin("https://example.com")

	port := ephemeralPort()
	require.NoError(t, m.GrantPortPermission(ctx, origin, port))

	has, err := m.HasPortPermission(ctx, origin, port)
	require.NoError(t, err)
	assert.True(t, has)

	// A non-persistable port with an unknown token short-circuits before
	// the durable scan.
	has, err = m.HasPortPermission(ctx, origin, ephemeralPort())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEphemeralGrantIsPerOrigin(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(NewKVObjectStore(newMemKV()))

	port := ephemeralPort()
	require.NoError(t, m.GrantPortPermission(ctx, "https://a.example", port))

	has, err := m.HasPortPermission(ctx, "https://b.example", port)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRepeatedGrantAppendsWithoutLoss(t *testing.T) {
	ctx := context.Background()
	backend := NewKVObjectStore(newMemKV())
	m, _ := newTestManager(backend)
	origin := models.Origin("https://example.com")

	port := stablePort()
	require.NoError(t, m.GrantPortPermission(ctx, origin, port))
	require.NoError(t, m.GrantPortPermission(ctx, origin, port))

	objects, err := backend.GetGrantedObjects(ctx, origin, SettingKeySerialGrantedDevices)
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	has, err := m.HasPortPermission(ctx, origin, port)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestConnectionErrorClearsEphemeralKeepsDurable(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(NewKVObjectStore(newMemKV()))

	ephOrigin := models.Origin("https://ephemeral.example")
	durOrigin := models.Origin("https://durable.example")

	ephPort := ephemeralPort()
	durPort := stablePort()

	require.NoError(t, m.GrantPortPermission(ctx, ephOrigin, ephPort))
	require.NoError(t, m.GrantPortPermission(ctx, durOrigin, durPort))

	m.OnConnectionError()

	has, err := m.HasPortPermission(ctx, ephOrigin, ephPort)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = m.HasPortPermission(ctx, durOrigin, durPort)
	require.NoError(t, err)
	assert.True(t, has)

	// The record index is part of the volatile state.
	_, ok := m.CachedPortRecord(ephPort.Token)
	assert.False(t, ok)
	_, ok = m.CachedPortRecord(durPort.Token)
	assert.False(t, ok)
}

func TestOnPortRemovedEvictsIndexOnly(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(NewKVObjectStore(newMemKV()))
	origin := models.Origin("https://example.com")

	port := ephemeralPort()
	require.NoError(t, m.GrantPortPermission(ctx, origin, port))

	_, ok := m.CachedPortRecord(port.Token)
	require.True(t, ok)

	// Observers must still see the cached record during the callback.
	sawRecord := false
	reg := m.AddPortObserver(&funcObserver{onRemoved: func(p *models.SerialPort) {
		_, sawRecord = m.CachedPortRecord(p.Token)
	}})
	defer m.RemovePortObserver(reg)

	m.OnPortRemoved(port)

	assert.True(t, sawRecord)

	_, ok = m.CachedPortRecord(port.Token)
	assert.False(t, ok)

	// Neither permission tier is touched by removal.
	has, err := m.HasPortPermission(ctx, origin, port)
	require.NoError(t, err)
	assert.True(t, has)
}

type funcObserver struct {
	onAdded   func(*models.SerialPort)
	onRemoved func(*models.SerialPort)
}

func (o *funcObserver) OnPortAdded(port *models.SerialPort) {
	if o.onAdded != nil {
		o.onAdded(port)
	}
}

func (o *funcObserver) OnPortRemoved(port *models.SerialPort) {
	if o.onRemoved != nil {
		o.onRemoved(port)
	}
}

func TestObserversNotifiedInRegistrationOrder(t *testing.T) {
	m, _ := newTestManager(NewKVObjectStore(newMemKV()))

	var order []string

	first := &recordingObserver{name: "first", log: &order}
	second := &recordingObserver{name: "second", log: &order}

	m.AddPortObserver(first)
	regSecond := m.AddPortObserver(second)

	port := ephemeralPort()
	m.OnPortAdded(port)

	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, first.added, 1)
	assert.Same(t, port, first.added[0])

	m.RemovePortObserver(regSecond)
	m.OnPortRemoved(port)

	assert.Len(t, first.removed, 1)
	assert.Empty(t, second.removed)

	// Double removal is a no-op.
	m.RemovePortObserver(regSecond)
}

func TestPortManagerLazyBinding(t *testing.T) {
	m, binder := newTestManager(NewKVObjectStore(newMemKV()))

	handle, err := m.PortManager()
	require.NoError(t, err)
	assert.Equal(t, 1, binder.binds)
	assert.NotNil(t, binder.handle.client)
	assert.NotNil(t, binder.handle.disconnect)

	// Already connected: same handle, no rebind.
	again, err := m.PortManager()
	require.NoError(t, err)
	assert.Same(t, handle, again)
	assert.Equal(t, 1, binder.binds)

	// Connection loss resets to disconnected; next use rebinds.
	binder.handle.disconnect()
	assert.Equal(t, 1, binder.handle.closed)

	_, err = m.PortManager()
	require.NoError(t, err)
	assert.Equal(t, 2, binder.binds)
}

func TestPortManagerBindFailureIsRetryable(t *testing.T) {
	m, binder := newTestManager(NewKVObjectStore(newMemKV()))
	binder.err = errBindFailed

	_, err := m.PortManager()
	assert.ErrorIs(t, err, errBindFailed)

	binder.err = nil

	_, err = m.PortManager()
	require.NoError(t, err)
	assert.Equal(t, 2, binder.binds)
}

func TestPortManagerClientRegistrationFailure(t *testing.T) {
	m, binder := newTestManager(NewKVObjectStore(newMemKV()))

	// First bind hands out a handle that rejects the client.
	_, err := m.PortManager()
	require.NoError(t, err)

	m.OnConnectionError()

	binder.handle = nil
	errReject := errors.New("client rejected")
	rejectingBinder := &rejectOnceBinder{err: errReject}
	m.binder = rejectingBinder

	_, err = m.PortManager()
	assert.ErrorIs(t, err, errReject)
	assert.Equal(t, 1, rejectingBinder.handle.closed)

	// The failure left the state retryable.
	_, err = m.PortManager()
	require.NoError(t, err)
}

type rejectOnceBinder struct {
	err    error
	handle *fakeHandle
	binds  int
}

func (b *rejectOnceBinder) BindPortManager() (PortManagerHandle, error) {
	b.binds++
	b.handle = &fakeHandle{}

	if b.binds == 1 {
		b.handle.clientErr = b.err
	}

	return b.handle, nil
}
