package confusables

// knownBrands is the allow-list of high-value domains incoming domains
// are compared against for typosquatting/homograph similarity. Extending
// this list only changes sensitivity, never correctness of the matching
// algorithm.
var knownBrands = []string{
	"google.com",
	"gmail.com",
	"microsoft.com",
	"outlook.com",
	"office365.com",
	"apple.com",
	"icloud.com",
	"amazon.com",
	"paypal.com",
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"netflix.com",
	"dropbox.com",
	"docusign.com",
	"adobe.com",
	"salesforce.com",
	"chase.com",
	"bankofamerica.com",
	"wellsfargo.com",
	"americanexpress.com",
	"github.com",
	"slack.com",
	"zoom.us",
	"ups.com",
	"fedex.com",
	"usps.com",
	"dhl.com",
	"irs.gov",
	"ebay.com",
	"wordpress.com",
	"godaddy.com",
}
