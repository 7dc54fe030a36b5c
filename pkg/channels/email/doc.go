// Package email delivers EMAIL channel jobs.
//
// Production traffic goes through Postmark server-side templates addressed by
// the job's template id; the template data becomes the template model. An
// unknown alias is reported as notifications.ErrTemplateNotFound so the job is
// not retried. Without Postmark credentials the DevSender writes each message
// as JSON to a local directory instead:
//
//	provider, err := email.NewProviderFromConfig(cfg)
//	if err != nil {
//		return err
//	}
//	handler, err := notifications.NewChannelHandler(notifications.ChannelEmail, provider, agg)
package email
