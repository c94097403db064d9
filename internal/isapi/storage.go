package isapi

import (
	"context"
	"net/http"
)

// getStorage reads the HDD and NAS inventory. Also used by pollers to
// refresh disk status after discovery.
func (c *Client) getStorage(ctx context.Context) error {
	storage, err := c.GetStorageDevices(ctx)
	if err != nil {
		return err
	}
	c.Storage = storage
	return nil
}

// GetStorageDevices fetches ContentMgmt/Storage and normalizes both disk
// kinds into one list.
func (c *Client) GetStorageDevices(ctx context.Context) ([]StorageInfo, error) {
	raw, err := c.Request(ctx, http.MethodGet, "ContentMgmt/Storage")
	if err != nil {
		return nil, err
	}
	info, _ := DeepGet(raw, "storage", map[string]any{}).(map[string]any)

	var storage []StorageInfo
	for _, hdd := range DeepGetList(info, "hddList.hdd") {
		storage = append(storage, StorageInfo{
			ID:        DeepGetInt(hdd, "id", 0),
			Name:      DeepGetStr(hdd, "hddName"),
			Type:      DeepGetStr(hdd, "hddType"),
			Status:    DeepGetStr(hdd, "status"),
			Capacity:  int64(DeepGetInt(hdd, "capacity", 0)),
			Freespace: int64(DeepGetInt(hdd, "freeSpace", 0)),
			Property:  DeepGetStr(hdd, "property"),
		})
	}
	for _, nas := range DeepGetList(info, "nasList.nas") {
		storage = append(storage, StorageInfo{
			ID:        DeepGetInt(nas, "id", 0),
			Name:      DeepGetStr(nas, "path"),
			Type:      DeepGetStr(nas, "type"),
			Status:    DeepGetStr(nas, "status"),
			Capacity:  int64(DeepGetInt(nas, "capacity", 0)),
			Freespace: int64(DeepGetInt(nas, "freeSpace", 0)),
			IPAddress: DeepGetStr(nas, "ipAddress"),
		})
	}
	return storage, nil
}
