package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goatkit/goatdesk/internal/forms"
)

var (
	submitSender  string
	submitEmail   string
	submitMessage string
)

var submitCmd = &cobra.Command{
	Use:   "submit <formType>",
	Short: "Submit an inquiry form and print the issued chat token",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitSender, "sender", "", "your name")
	submitCmd.Flags().StringVar(&submitEmail, "email", "", "contact email")
	submitCmd.Flags().StringVar(&submitMessage, "message", "", "inquiry text")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	token, err := forms.NewClient(newGateway()).Submit(context.Background(), forms.Submission{
		FormType: args[0],
		Sender:   submitSender,
		Email:    submitEmail,
		Message:  submitMessage,
	})
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
