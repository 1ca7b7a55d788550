package email

import "fmt"

// SendHarmfulChangesetAlert notifies the moderator list that a changeset
// was marked harmful.
func (c *Client) SendHarmfulChangesetAlert(to []string, changesetID int64, checkUser string) error {
	data := map[string]string{
		"ChangesetID": fmt.Sprintf("%d", changesetID),
		"CheckUser":   checkUser,
		"ChangesetURL": fmt.Sprintf(
			"https://www.openstreetmap.org/changeset/%d", changesetID),
	}

	return c.SendEmail(
		to,
		fmt.Sprintf("Changeset %d was marked as harmful", changesetID),
		TemplateHarmfulAlert,
		data,
	)
}
