package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeProbe drives a headless Chrome session and records network
// traffic while clicking the player element. Some providers only
// request their m3u8 playlist once the player starts, and often only
// after a pre-roll ad finishes, hence the two waits.
type ChromeProbe struct {
	SettleMin time.Duration // page-load settle, randomized between min and max
	SettleMax time.Duration
	AdWait    time.Duration // overlay/ad wait after the click

	logger *slog.Logger
}

// NewChromeProbe returns a probe with the settle intervals the stream
// providers are known to tolerate.
func NewChromeProbe() *ChromeProbe {
	return &ChromeProbe{
		SettleMin: 5 * time.Second,
		SettleMax: 10 * time.Second,
		AdWait:    20 * time.Second,
		logger:    slog.Default().With("component", "browser-probe"),
	}
}

// ObserveNetworkRequests loads pageURL, clicks the element at the
// XPath locator and returns every observed request in observation
// order, flagged with whether a response arrived.
func (p *ChromeProbe) ObserveNetworkRequests(ctx context.Context, pageURL, element string) ([]NetworkRequest, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var (
		mu       sync.Mutex
		observed []NetworkRequest
		index    = make(map[network.RequestID]int)
	)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			mu.Lock()
			index[ev.RequestID] = len(observed)
			observed = append(observed, NetworkRequest{URL: ev.Request.URL})
			mu.Unlock()
		case *network.EventResponseReceived:
			mu.Lock()
			if i, ok := index[ev.RequestID]; ok {
				observed[i].HasResponse = true
			}
			mu.Unlock()
		}
	})

	settle := p.SettleMin
	if p.SettleMax > p.SettleMin {
		settle += time.Duration(rand.Int63n(int64(p.SettleMax - p.SettleMin)))
	}
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(settle),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: load %s: %w", pageURL, err)
	}

	if err := chromedp.Run(browserCtx, chromedp.Click(element, chromedp.BySearch)); err != nil {
		// Overlays intercept native clicks on some players; fall back
		// to a script-driven click on the same node.
		p.log().Debug("Native click failed, trying script click", "element", element, "error", err)
		if err := chromedp.Run(browserCtx, chromedp.Evaluate(scriptClick(element), nil)); err != nil {
			return nil, fmt.Errorf("capture: click %s on %s: %w", element, pageURL, err)
		}
	}

	if err := chromedp.Run(browserCtx, chromedp.Sleep(p.AdWait)); err != nil {
		return nil, fmt.Errorf("capture: wait on %s: %w", pageURL, err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]NetworkRequest, len(observed))
	copy(out, observed)
	return out, nil
}

// log tolerates zero-value construction, like the wait fields.
func (p *ChromeProbe) log() *slog.Logger {
	if p.logger == nil {
		return slog.Default()
	}
	return p.logger
}

func scriptClick(xpath string) string {
	return fmt.Sprintf(
		`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue.click();`,
		xpath,
	)
}
