package isapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/beevik/etree"
)

// GetHolidayEnabledState reads whether the first holiday schedule slot is
// active. The integration drives recording schedules through that slot.
func (c *Client) GetHolidayEnabledState(ctx context.Context) (bool, error) {
	raw, err := c.Request(ctx, http.MethodGet, "System/Holidays")
	if err != nil {
		return false, err
	}
	holidays := DeepGetList(raw, "HolidayList.holiday")
	if len(holidays) == 0 {
		return false, fmt.Errorf("%w: empty holiday list", ErrMalformed)
	}
	return StrToBool(DeepGetStr(holidays[0], "enabled")), nil
}

// SetHolidayEnabledState toggles the first holiday slot. Enabling rewrites
// it as a date-mode holiday covering today through one year out, so it stays
// active regardless of how the slot was configured before; the rest of the
// document is PUT back untouched.
func (c *Client) SetHolidayEnabledState(ctx context.Context, enable bool) error {
	body, err := c.RequestRaw(ctx, http.MethodGet, "System/Holidays")
	if err != nil {
		return err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "HolidayList" {
		return fmt.Errorf("%w: expected HolidayList document", ErrMalformed)
	}
	holidays := root.SelectElements("holiday")
	if len(holidays) == 0 {
		return fmt.Errorf("%w: empty holiday list", ErrMalformed)
	}
	holiday := holidays[0]
	enabledEl := holiday.SelectElement("enabled")
	if enabledEl == nil {
		enabledEl = holiday.CreateElement("enabled")
	}
	if StrToBool(enabledEl.Text()) == enable {
		return nil
	}
	enabledEl.SetText(BoolToStr(enable))

	if enable {
		if mode := holiday.SelectElement("holidayMode"); mode != nil {
			mode.SetText("date")
		} else {
			holiday.CreateElement("holidayMode").SetText("date")
		}
		for _, tag := range []string{"holidayWeek", "holidayMonth", "holidayDate"} {
			if el := holiday.SelectElement(tag); el != nil {
				holiday.RemoveChild(el)
			}
		}
		today := time.Now()
		dates := holiday.CreateElement("holidayDate")
		dates.CreateElement("startDate").SetText(today.Format("2006-01-02"))
		dates.CreateElement("endDate").SetText(today.AddDate(1, 0, 0).Format("2006-01-02"))
	}

	out, err := doc.WriteToString()
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, http.MethodPut, "System/Holidays", WithXMLBody(out))
	return err
}
