package services

import (
	"strconv"
	"strings"
)

// Prompt templates. Placeholders are {{job}}, {{animal}}, {{existing_jobs}} and {{duration}}.
const (
	datasetPromptTemplate = `You are helping me build a dataset for generative video creation.

Task:
- Generate EXACTLY 10 unique jobs.
- For each job, list 3–4 animals that would be visually and conceptually suitable for that job.
- Jobs must be imaginative but still easy to recognize visually in a short video.
- Animals should make intuitive sense for the job (based on behavior, stereotypes, or symbolism).

Constraints:
- DO NOT reuse or paraphrase any of the following existing jobs:
{{existing_jobs}}

- Each job must be a single noun phrase (e.g., "firefighter", "librarian", "street photographer").
- Animals must be common, recognizable animals (no mythical creatures).

Output format:
Return ONLY valid JSON in the following structure:

{
  "job_name": {
    "animals": ["animal_1", "animal_2", ...],
    "used": false
  }
}

- Use lowercase for all job and animal names.
- Do not include any explanations, comments, or extra text.
`

	imagePromptTemplate = `Cinematic photographic image, ultra-realistic, natural and lifelike lighting.
A towering anthropomorphic {{animal}} portrayed as a professional {{job}}, with a powerful yet elegant physique and confident upright posture.

Outfit design:
The {{animal}} wears a premium, tailored {{job}} uniform that makes the profession instantly recognizable at a glance.
Include iconic {{job}} signifiers (distinctive silhouette, accessories, tools, insignia, badges, helmet/hat, utility belt, gloves, or footwear) while keeping everything realistic and high-end.
The outfit is intelligently adapted to the {{animal}}'s anatomy—custom openings for ears/horns, adjusted collar and shoulder structure for a different neck shape, tailored sleeves/legs for paws or hooves, and natural accommodation for a tail, wings, or fur/feathers.
The design preserves the {{animal}}'s natural facial features and texture; the uniform complements the animal rather than covering it.
Realistic fabric weight, stitching, seams, and subtle wear consistent with real professional gear.

Facial expression is calm, dignified, and focused, conveying intelligence and purpose.
Full-body shot, centered composition, standing or walking forward with confidence.

Environment:
A realistic, job-specific working environment directly associated with the profession of a {{job}}.
The setting should clearly indicate where a {{job}} would normally work in real life, using recognizable tools, furniture, equipment, architecture, and spatial layout.
The environment feels functional and authentic rather than ceremonial or decorative.
Natural lighting appropriate to the location, with cinematic depth but grounded realism.

Photography style:
High-end editorial photography, shallow depth of field, crisp focus, rich details, natural reflections, cinematic contrast.
No cartoon style, no illustration, no exaggeration.

Pose and orientation:
The {{animal}} stands still, facing directly forward toward the camera.
Body orientation remains front-facing, with a balanced, grounded stance.

Composition:
Single subject, full body visible, clean background composition, professional cinematic framing.`

	videoPromptTemplate = `The anthropomorphic {{animal}} dressed as a {{job}} walks forward at a slow, confident, ceremonial pace.
The movement is dignified and controlled, with smooth, deliberate steps and natural body motion.
Posture remains upright and composed, conveying authority and professionalism.
The character does not look directly at the camera; instead, their gaze subtly shifts forward or slightly around the environment, as if entering an important professional or ceremonial moment.

Clothing motion:
The job-specific outfit moves naturally with each step, showing realistic fabric weight, subtle folds, and gentle motion.

Environment:
The scene takes place in the same grand, professional setting as the image, with warm cinematic lighting.
Reflections from polished floors, architectural details, and ambient light enhance realism.

Camera:
Camera is very slowly tracking backward.
No sudden movements, no zooms, no shakes.
Ultra-smooth cinematic motion with shallow depth of field.
`

	bgmPromptTemplate = `Fast-paced, short intro.
Anthropomorphic animals as a {{job}}.
High-energy, exciting, confident.
Electronic synths, punchy bass, driving drums.
Modern EDM-inspired cinematic groove.
No piano, no vocals, no lyrics.
Target duration: about {{duration}} seconds (okay if longer; will be trimmed).`
)

// DatasetPrompt asks for ten new jobs, excluding the ones already in the dataset.
func DatasetPrompt(existingJobs []string) string {
	existing := "none"
	if len(existingJobs) > 0 {
		existing = strings.Join(existingJobs, ", ")
	}
	return strings.NewReplacer("{{existing_jobs}}", existing).Replace(datasetPromptTemplate)
}

// ImagePrompt describes the still of an animal dressed for a job.
func ImagePrompt(job, animal string) string {
	return jobAnimalReplacer(job, animal).Replace(imagePromptTemplate)
}

// VideoPrompt describes the motion applied to the still.
func VideoPrompt(job, animal string) string {
	return jobAnimalReplacer(job, animal).Replace(videoPromptTemplate)
}

// BGMPrompt describes the background track for a job.
func BGMPrompt(job string, durationSeconds int) string {
	return strings.NewReplacer(
		"{{job}}", job,
		"{{duration}}", strconv.Itoa(durationSeconds),
	).Replace(bgmPromptTemplate)
}

func jobAnimalReplacer(job, animal string) *strings.Replacer {
	return strings.NewReplacer("{{job}}", job, "{{animal}}", animal)
}
