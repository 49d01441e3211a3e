package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/auth"
	"github.com/PortNumber53/quote-autopost/internal/models"
	"github.com/PortNumber53/quote-autopost/internal/socialpublish"
)

// containerProfile is what differs between the two Graph networks that publish through
// staged media containers.
type containerProfile struct {
	platform     models.Platform
	base         string
	createEdge   string
	publishEdge  string
	states       socialpublish.ContainerStates
	imageNeeded  bool
	createParams func(req socialpublish.Request) url.Values
}

var instagramProfile = containerProfile{
	platform:    models.PlatformInstagram,
	base:        GraphFacebookBase,
	createEdge:  "media",
	publishEdge: "media_publish",
	states: socialpublish.ContainerStates{
		Field:    "status_code",
		Finished: []string{"FINISHED", "PUBLISHED"},
		Failed:   []string{"ERROR", "EXPIRED"},
	},
	imageNeeded: true,
	createParams: func(req socialpublish.Request) url.Values {
		v := url.Values{}
		v.Set("image_url", req.ImageURL)
		v.Set("caption", req.Text)
		return v
	},
}

var threadsProfile = containerProfile{
	platform:    models.PlatformThreads,
	base:        GraphThreadsBase,
	createEdge:  "threads",
	publishEdge: "threads_publish",
	states: socialpublish.ContainerStates{
		Field:    "status",
		Finished: []string{"FINISHED", "PUBLISHED"},
		Failed:   []string{"ERROR", "EXPIRED"},
	},
	createParams: func(req socialpublish.Request) url.Values {
		v := url.Values{}
		v.Set("text", req.Text)
		if strings.TrimSpace(req.ImageURL) != "" {
			v.Set("media_type", "IMAGE")
			v.Set("image_url", req.ImageURL)
		} else {
			v.Set("media_type", "TEXT")
		}
		return v
	},
}

// ContainerPublisher runs create container → wait → publish → permalink.
type ContainerPublisher struct {
	profile containerProfile
	client  *http.Client
	log     *zap.Logger
	creds   auth.APIKeyCredentials
	poller  socialpublish.ContainerPoller
}

func newInstagram(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*ContainerPublisher, error) {
	return newContainer(instagramProfile, cfg, deps, log)
}

func newThreads(cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*ContainerPublisher, error) {
	return newContainer(threadsProfile, cfg, deps, log)
}

func newContainer(profile containerProfile, cfg auth.ResolvedAuthConfig, deps Deps, log *zap.Logger) (*ContainerPublisher, error) {
	if cfg.Mode != auth.ModeAPIKey || cfg.APIKey == nil {
		return nil, modeError(cfg)
	}
	return &ContainerPublisher{
		profile: profile,
		client:  deps.client(),
		log:     log,
		creds:   *cfg.APIKey,
		poller: socialpublish.ContainerPoller{
			Platform: profile.platform,
			Interval: cfg.Options.PollInterval,
			Timeout:  cfg.Options.PollTimeout,
			Now:      deps.Now,
		},
	}, nil
}

func (p *ContainerPublisher) Platform() models.Platform { return p.profile.platform }

func (p *ContainerPublisher) Publish(ctx context.Context, req socialpublish.Request) (socialpublish.Post, error) {
	pf := p.profile
	if pf.imageNeeded && strings.TrimSpace(req.ImageURL) == "" {
		return socialpublish.Post{}, socialpublish.Errorf(pf.platform, socialpublish.KindPrecondition, "container", "an image url is required")
	}

	form := pf.createParams(req)
	containerID, err := p.postForID(ctx, "create container", pf.createEdge, form)
	if err != nil {
		return socialpublish.Post{}, err
	}
	p.log.Debug("container_created", zap.String("containerId", containerID))

	check := socialpublish.GraphContainerCheck(p.client, pf.platform, pf.base, p.creds.AccessToken, pf.states)
	if err := p.poller.WaitUntilReady(ctx, containerID, pf.states, check); err != nil {
		return socialpublish.Post{}, err
	}

	pub := url.Values{}
	pub.Set("creation_id", containerID)
	mediaID, err := p.postForID(ctx, "publish", pf.publishEdge, pub)
	if err != nil {
		return socialpublish.Post{}, err
	}

	permalink, err := p.permalink(ctx, mediaID)
	if err != nil {
		p.log.Warn("permalink_lookup_failed", zap.String("mediaId", mediaID), zap.Error(err))
	}
	p.log.Info("publish_ok", zap.String("containerId", containerID), zap.String("mediaId", mediaID))
	return socialpublish.Post{ID: mediaID, URL: permalink}, nil
}

func (p *ContainerPublisher) postForID(ctx context.Context, op, edge string, form url.Values) (string, error) {
	form.Set("access_token", p.creds.AccessToken)
	endpoint := p.profile.base + "/" + url.PathEscape(p.creds.AccountID) + "/" + edge
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := socialpublish.Do(p.client, p.profile.platform, op, req, socialpublish.GraphError)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", socialpublish.Errorf(p.profile.platform, socialpublish.KindAPI, op, "response missing id")
	}
	return out.ID, nil
}

func (p *ContainerPublisher) permalink(ctx context.Context, mediaID string) (string, error) {
	q := url.Values{}
	q.Set("fields", "permalink")
	q.Set("access_token", p.creds.AccessToken)
	endpoint := p.profile.base + "/" + url.PathEscape(mediaID) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	body, err := socialpublish.Do(p.client, p.profile.platform, "permalink", req, socialpublish.GraphError)
	if err != nil {
		return "", err
	}
	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Permalink, nil
}
