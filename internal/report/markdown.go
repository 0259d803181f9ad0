package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const notAvailable = "-"

func analysisMarkdown(w io.Writer, a lead.WebsiteAnalysis) error {
	md := markdown.NewMarkdown(w)

	md.H1("Website Report: " + displayHost(a.URL))
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", a.URL},
			{"Final URL", orDash(a.FinalURL)},
			{"Status", statusText(a)},
			{"Score", fmt.Sprintf("%d / 100", a.Score)},
			{"Grade", orDash(a.Grade)},
			{"Load Time", loadTime(a.LoadTime)},
			{"Page Size", strconv.Itoa(a.PageBytes) + " bytes"},
			{"Rendered Headless", yesNo(a.UsedHeadless)},
			{"Analyzed", a.AnalyzedAt.UTC().Format(time.RFC3339)},
		},
	})
	md.PlainText("")

	writeOpportunity(md, a)

	md.H2("Checks")
	md.PlainText("")
	if len(a.Checks) == 0 {
		md.PlainText("No checks were run.")
	} else {
		rows := make([][]string, len(a.Checks))
		for i, c := range a.Checks {
			rows[i] = []string{
				c.Name,
				passMark(c),
				fmt.Sprintf("%d/%d", c.Points, c.MaxPoints),
				orDash(c.Detail),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Check", "Result", "Points", "Detail"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	md.H2("Contacts")
	md.PlainText("")
	contacts := contactItems(a)
	if len(contacts) == 0 {
		md.PlainText("No contact details found on the page.")
	} else {
		md.BulletList(contacts...)
	}
	md.PlainText("")

	if len(a.Technologies) > 0 {
		md.H2("Technologies")
		md.PlainText("")
		md.BulletList(a.Technologies...)
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("build markdown report: %w", err)
	}
	return nil
}

func writeOpportunity(md *markdown.Markdown, a lead.WebsiteAnalysis) {
	switch {
	case !a.Reachable:
		md.Cautionf("The website could not be loaded (%s). This business needs a working site.", orDash(a.Error))
	case a.Opportunity == lead.OpportunityHot:
		md.Importantf("Hot opportunity: the website scored %d and fails %d of %d checks.",
			a.Score, failedChecks(a.Checks), len(a.Checks))
	case a.Opportunity == lead.OpportunityWarm:
		md.Warningf("Warm opportunity: the website scored %d with room to improve.", a.Score)
	default:
		md.Tip("Cold opportunity: the website is in good shape.")
	}
	md.PlainText("")
}

func jobMarkdown(w io.Writer, res lead.JobResult) error {
	md := markdown.NewMarkdown(w)
	job := res.Job
	c := job.Counters

	title := job.Parameters.Query
	if job.Parameters.Location != "" {
		title += " in " + job.Parameters.Location
	}
	md.H1("Discovery: " + title)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Job", "`" + job.ID + "`"},
			{"Status", string(job.Status)},
			{"Submitted", job.Submitted.UTC().Format(time.RFC3339)},
			{"Sources", orDash(strings.Join(job.Parameters.Sources, ", "))},
		},
	})
	md.PlainText("")
	if job.ErrorText != "" {
		md.Cautionf("Job ended with an error: %s", job.ErrorText)
		md.PlainText("")
	}

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Stage", "Count"},
		Rows: [][]string{
			{"Found", strconv.Itoa(c.Found)},
			{"Filtered", strconv.Itoa(c.Filtered)},
			{"Duplicates", strconv.Itoa(c.Duplicates)},
			{"Analyzed", strconv.Itoa(c.Analyzed)},
			{"Analysis Failed", strconv.Itoa(c.AnalysisFailed)},
			{"**Created**", "**" + strconv.Itoa(c.Created) + "**"},
		},
	})
	md.PlainText("")

	md.H2("Leads")
	md.PlainText("")
	if len(res.Leads) == 0 {
		md.PlainText("No new leads were created.")
	} else {
		rows := make([][]string, len(res.Leads))
		hot := 0
		for i, l := range res.Leads {
			opp := notAvailable
			if l.Analysis != nil {
				opp = string(l.Analysis.Opportunity)
				if l.Analysis.Opportunity == lead.OpportunityHot {
					hot++
				}
			}
			rows[i] = []string{l.Name, orDash(l.Website), scoreText(l.Score), orDash(l.Grade), opp, orDash(l.Phone), orDash(l.Email)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Name", "Website", "Score", "Grade", "Opportunity", "Phone", "Email"},
			Rows:   rows,
		})
		if hot > 0 {
			md.PlainText("")
			md.Importantf("%d hot lead(s) with weak websites.", hot)
		}
	}
	md.PlainText("")

	if len(res.Duplicates) > 0 {
		md.H2("Skipped Duplicates")
		md.PlainText("")
		rows := make([][]string, len(res.Duplicates))
		for i, d := range res.Duplicates {
			rows[i] = []string{
				d.Business.Name,
				orDash(d.Business.Website),
				d.Reason,
				strconv.FormatFloat(d.Similarity, 'f', 2, 64),
				orDash(d.LeadID),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Name", "Website", "Reason", "Similarity", "Existing Lead"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("build markdown report: %w", err)
	}
	return nil
}

func contactItems(a lead.WebsiteAnalysis) []string {
	var items []string
	for _, e := range a.Emails {
		items = append(items, "Email: "+e)
	}
	for _, p := range a.Phones {
		items = append(items, "Phone: "+p)
	}
	for _, s := range a.SocialLinks {
		items = append(items, "Social: "+s)
	}
	return items
}

func statusText(a lead.WebsiteAnalysis) string {
	if !a.Reachable {
		return "unreachable"
	}
	return strconv.Itoa(a.StatusCode)
}

func passMark(c lead.Check) string {
	switch {
	case c.Passed:
		return "pass"
	case c.Points > 0:
		return "partial"
	default:
		return "fail"
	}
}

func failedChecks(checks []lead.Check) int {
	n := 0
	for _, c := range checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

func scoreText(score int) string {
	if score == lead.Unscored {
		return notAvailable
	}
	return strconv.Itoa(score)
}

func loadTime(d time.Duration) string {
	if d <= 0 {
		return notAvailable
	}
	return d.Round(time.Millisecond).String()
}

func displayHost(raw string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	return strings.TrimSuffix(host, "/")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
