package dialogue

import (
	"fitcoachdev/workout"
	"html"
	"strings"
)

const (
	textChooseLanguage    = "Please choose your language:"
	textChooseNewLanguage = "Please choose your new language:"
	textFitnessQuestion   = "How would you describe your fitness level?"
	textDurationQuestion  = "How many minutes (between 2 and 200) would you like the session to last?"
	textInvalidNumber     = "Please enter a valid number."
	textOutOfRange        = "Please enter a number between 2 and 200."
	textGenerating        = "Creating your workout plan, this can take a minute..."
	textGenerationFailed  = "Sorry, I couldn't create a workout plan right now. Please send the number of minutes again."
	textUpdateQuestion    = "What would you like to update?"
	textUpdateLanguage    = "Update Language"
	textUpdateFitness     = "Update Fitness Level"
	textDescription       = "Description:"
	textReps              = "Reps"
	textVideo             = "Video demonstration"
	textNoVideo           = "No video found."
	textUnknownExercise   = "Unknown Exercise"
	textNoDescription     = "No description provided."
	textNoReps            = "No reps specified."
)

// exerciseLabels are the fixed strings of an exercise message, translated once per plan.
var exerciseLabels = []string{textDescription, textReps, textVideo, textNoVideo}

type labels struct {
	description string
	reps        string
	video       string
	noVideo     string
}

func newLabels(translated []string) labels {
	return labels{
		description: translated[0],
		reps:        translated[1],
		video:       translated[2],
		noVideo:     translated[3],
	}
}

// withDefaults fills the prose fields the model left empty.
func withDefaults(e workout.Exercise) workout.Exercise {
	if e.Name == "" {
		e.Name = textUnknownExercise
	}
	if e.Description == "" {
		e.Description = textNoDescription
	}
	if e.Reps == "" {
		e.Reps = textNoReps
	}
	return e
}

// formatExercise wraps already translated prose in Telegram HTML. Prose is escaped
// here so that translation never sees or produces markup.
func formatExercise(name, description, reps string, video workout.Video, l labels) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</b>\n\n<b>")
	b.WriteString(html.EscapeString(l.description))
	b.WriteString("</b> ")
	b.WriteString(html.EscapeString(description))
	b.WriteString("\n\n<b>")
	b.WriteString(html.EscapeString(l.reps))
	b.WriteString("</b>: ")
	b.WriteString(html.EscapeString(reps))
	b.WriteString("\n\n")
	if video.Found() {
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(video.URL))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(l.video))
		b.WriteString("</a>")
	} else {
		b.WriteString("<i>")
		b.WriteString(html.EscapeString(l.noVideo))
		b.WriteString("</i>")
	}
	return b.String()
}
