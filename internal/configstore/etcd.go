package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clipper-go/predictserve/internal/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	basePath           = "/config/applications/"
	dialTimeout        = 5 * time.Second
	connectRetryPeriod = 1 * time.Second
)

var component = logging.Component("CONFIGSTORE")

// EtcdStore implements Store on top of etcd, following the connect-loop
// and RegisterWatchPathCallback idioms of the teacher's pkg/etcd package.
// It opens two clientv3.Client connections, matching spec.md §4.2's "two
// logical connections... a read/write connection and a subscriber".
type EtcdStore struct {
	servers  []string
	username string
	password string

	// maxRetries bounds dialWithRetry's connect loop; 0 means retry
	// forever, matching config_store_connect_retries' documented default.
	maxRetries int

	rw   *clientv3.Client
	sub  *clientv3.Client
	stop chan struct{}
}

// NewEtcdStore constructs a store bound to the given etcd endpoints.
// Connect must be called before use. maxRetries backs
// internal/config's config_store_connect_retries; 0 retries forever.
func NewEtcdStore(serversCSV, username, password string, maxRetries int) *EtcdStore {
	return &EtcdStore{
		servers:    strings.Split(serversCSV, ","),
		username:   username,
		password:   password,
		maxRetries: maxRetries,
		stop:       make(chan struct{}),
	}
}

// Connect dials both connections, retrying every second until each
// succeeds or, when maxRetries > 0, until the retry budget is spent.
func (e *EtcdStore) Connect() error {
	rw, err := e.dialWithRetry()
	if err != nil {
		return err
	}
	e.rw = rw

	sub, err := e.dialWithRetry()
	if err != nil {
		return err
	}
	e.sub = sub

	component.Info(fmt.Sprintf("connected to configuration store at %v", e.servers))
	return nil
}

// dialWithRetry retries until it connects, e.stop fires, or maxRetries
// attempts are exhausted (when maxRetries > 0). Exhausting the retry
// budget returns an error, which Connect propagates so main.go's
// fatal-exit-on-connect-failure path fires per spec.md §6/§7.
func (e *EtcdStore) dialWithRetry() (*clientv3.Client, error) {
	cfg := clientv3.Config{
		Endpoints:   e.servers,
		Username:    e.username,
		Password:    e.password,
		DialTimeout: dialTimeout,
	}
	for attempt := 1; ; attempt++ {
		select {
		case <-e.stop:
			return nil, fmt.Errorf("configuration store connect aborted")
		default:
		}
		client, err := clientv3.New(cfg)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			_, statusErr := client.Status(ctx, e.servers[0])
			cancel()
			if statusErr == nil {
				return client, nil
			}
			client.Close()
			err = statusErr
		}
		if e.maxRetries > 0 && attempt >= e.maxRetries {
			return nil, fmt.Errorf("configuration store unreachable after %d attempts: %w", attempt, err)
		}
		component.Error("failed to connect to configuration store, retrying in 1 second", err)
		time.Sleep(connectRetryPeriod)
	}
}

// GetApplicationByKey fetches and JSON-decodes the flat field map stored
// at basePath+name.
func (e *EtcdStore) GetApplicationByKey(name string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	resp, err := e.rw.Get(ctx, basePath+name)
	if err != nil {
		return nil, fmt.Errorf("configuration store connection loss: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("no application record for %q", name)
	}
	fields := make(map[string]string)
	if err := json.Unmarshal(resp.Kvs[0].Value, &fields); err != nil {
		return nil, fmt.Errorf("malformed application record for %q: %w", name, err)
	}
	return fields, nil
}

// ListApplicationNames fetches every key under basePath and strips the
// prefix, using WithKeysOnly since only the names are needed.
func (e *EtcdStore) ListApplicationNames() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	resp, err := e.rw.Get(ctx, basePath, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("configuration store connection loss: %w", err)
	}
	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		names = append(names, strings.TrimPrefix(string(kv.Key), basePath))
	}
	return names, nil
}

// SubscribeToApplicationChanges watches the application namespace and
// invokes callback for every mutation. A watch channel closing after a
// successful connect is treated as a fatal configuration-store loss, per
// spec.md §4.2/§7: "subsequent loss of connection is fatal to the
// frontend."
func (e *EtcdStore) SubscribeToApplicationChanges(callback ChangeCallback) {
	watchChan := e.sub.Watch(context.Background(), basePath, clientv3.WithPrefix())
	go func() {
		for {
			select {
			case <-e.stop:
				return
			case resp, ok := <-watchChan:
				if !ok {
					logging.Panic("configuration store subscriber connection lost", nil)
					return
				}
				if resp.Err() != nil {
					logging.Panic("configuration store watch error", resp.Err())
					return
				}
				for _, ev := range resp.Events {
					key := strings.TrimPrefix(string(ev.Kv.Key), basePath)
					eventType := EventHdel
					if ev.Type == clientv3.EventTypePut {
						eventType = EventHset
					}
					component.Info(fmt.Sprintf("application event detected. key=%s event_type=%s", key, eventType))
					callback(key, eventType)
				}
			}
		}
	}()
}

// Close releases both etcd connections.
func (e *EtcdStore) Close() error {
	close(e.stop)
	var firstErr error
	if e.rw != nil {
		if err := e.rw.Close(); err != nil {
			firstErr = err
		}
	}
	if e.sub != nil {
		if err := e.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PutApplication writes an application record. Not one of the three core
// read operations spec.md §4.2 lists (get/subscribe/str_to_models), but
// needed by administrative tooling and integration tests to seed the
// store the way an external admin action would (spec.md §3: "Created by
// an external admin action on the configuration store").
func (e *EtcdStore) PutApplication(name string, fields map[string]string) error {
	buf, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	_, err = e.rw.Put(ctx, basePath+name, string(buf))
	return err
}
