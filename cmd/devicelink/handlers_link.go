package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type linkRegisterPayload struct {
	Code           string `json:"code"`
	DriverName     string `json:"driverName,omitempty"`
	DeviceName     string `json:"deviceName,omitempty"`
	ExpiresMinutes int    `json:"expiresMinutes,omitempty"`
}

type linkRegisterReply struct {
	Code       string    `json:"code"`
	ExpiresUTC time.Time `json:"expiresUtc"`
}

type linkClaimPayload struct {
	Code      string `json:"code"`
	SingleUse bool   `json:"singleUse"`
}

type linkClaimReply struct {
	Code        string `json:"code"`
	GuildID     string `json:"guildId"`
	GuildName   string `json:"guildName"`
	DeviceToken string `json:"deviceToken"`
}

func runLinkRegister(cmd *cobra.Command, client *apiClient, code, driver, device string, minutes int) error {
	var reply linkRegisterReply
	err := client.postJSON(cmd.Context(), "/link/register", linkRegisterPayload{
		Code:           code,
		DriverName:     driver,
		DeviceName:     device,
		ExpiresMinutes: minutes,
	}, &reply)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Code %s registered, expires %s\n", reply.Code, reply.ExpiresUTC.Format(time.RFC3339))
	fmt.Fprintf(out, "Ask a server admin to run: !link %s\n", reply.Code)
	return nil
}

func runLinkClaim(cmd *cobra.Command, client *apiClient, code string, singleUse bool) error {
	var reply linkClaimReply
	err := client.postJSON(cmd.Context(), "/link/claim", linkClaimPayload{Code: code, SingleUse: singleUse}, &reply)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Linked to %s (%s)\n", reply.GuildName, reply.GuildID)
	fmt.Fprintf(out, "Device token: %s\n", reply.DeviceToken)
	return nil
}

func runLinkStatus(cmd *cobra.Command, client *apiClient, code string) error {
	var view map[string]any
	if err := client.getJSON(cmd.Context(), "/admin/links/"+pathEscape(code), &view); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
