package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Icebox.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Import queues a batch of source files.
func (c *Client) Import(sources []string) (*ImportResponse, error) {
	var resp ImportResponse
	req := ImportRequest{Sources: sources}
	if err := c.client.Call("Icebox.Import", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile triggers a cloud-tree scan.
func (c *Client) Reconcile() (*ReconcileResponse, error) {
	var resp ReconcileResponse
	if err := c.client.Call("Icebox.Reconcile", ReconcileRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PolicyApply runs one storage-policy pass.
func (c *Client) PolicyApply() (*PolicyResponse, error) {
	var resp PolicyResponse
	if err := c.client.Call("Icebox.PolicyApply", PolicyApplyRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PolicySet changes the storage policy and applies it.
func (c *Client) PolicySet(mode string, budgetBytes int64) (*PolicyResponse, error) {
	var resp PolicyResponse
	req := PolicySetRequest{Mode: mode, BudgetBytes: budgetBytes}
	if err := c.client.Call("Icebox.PolicySet", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Assets lists library assets, optionally with presence states.
func (c *Client) Assets(withPresence bool) (*AssetListResponse, error) {
	var resp AssetListResponse
	req := AssetListRequest{WithPresence: withPresence}
	if err := c.client.Call("Icebox.Assets", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Fetch requests an asset's bytes on local disk.
func (c *Client) Fetch(assetID int64) (*FetchResponse, error) {
	var resp FetchResponse
	req := FetchRequest{AssetID: assetID}
	if err := c.client.Call("Icebox.Fetch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AssetState probes one asset's presence state.
func (c *Client) AssetState(assetID int64) (*AssetStateResponse, error) {
	var resp AssetStateResponse
	req := AssetStateRequest{AssetID: assetID}
	if err := c.client.Call("Icebox.AssetState", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pin sets or clears the eviction exemption on an asset.
func (c *Client) Pin(assetID int64, pinned bool) (*PinResponse, error) {
	var resp PinResponse
	req := PinRequest{AssetID: assetID, Pinned: pinned}
	if err := c.client.Call("Icebox.Pin", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns tasks optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Icebox.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry retries failed tasks; no ids means all failed tasks.
func (c *Client) QueueRetry(ids []int64) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	req := QueueRetryRequest{IDs: ids}
	if err := c.client.Call("Icebox.QueueRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes task records by scope ("all", "succeeded", "failed").
func (c *Client) QueueClear(scope string) (*QueueClearResponse, error) {
	var resp QueueClearResponse
	req := QueueClearRequest{Scope: scope}
	if err := c.client.Call("Icebox.QueueClear", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Icebox.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Icebox.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Icebox.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
